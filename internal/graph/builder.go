// Package graph converts parsed molecules into the directed-graph
// representation consumed by the message-passing encoder. Each chemical bond
// becomes two directed bonds that are mutual reverses, and the four relations
// (atom→bonds, bond→atom, bond→reverse, atom→neighbors) are materialised as
// index slices so the serving side can batch them without pointer chasing.
package graph

import (
	"github.com/qsarlab/molgraph/internal/chem"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// DefaultMaxAtoms bounds molecule size; datasets in scope stay far below it.
const DefaultMaxAtoms = 200

// Graph is the immutable directed molecular graph for one molecule.
//
// Directed bonds are indexed so that chemical bond k yields directed bonds
// 2k (From→To) and 2k+1 (To→From).
type Graph struct {
	// SMILES is the source string, kept for diagnostics and cache keys.
	SMILES string

	// NumAtoms is the heavy-atom count.
	NumAtoms int
	// NumDirectedBonds is twice the chemical bond count.
	NumDirectedBonds int

	// AtomBonds lists, per atom, the ordered indices of directed bonds
	// leaving that atom.
	AtomBonds [][]int
	// BondAtom gives, per directed bond, the destination atom index.
	BondAtom []int
	// BondSource gives, per directed bond, the origin atom index.
	BondSource []int
	// ReverseBond gives, per directed bond, the index of the oppositely
	// directed bond over the same atom pair.
	ReverseBond []int
	// Neighbors lists, per atom, the ordered adjacent atom indices. The
	// ordering corresponds position-for-position with AtomBonds.
	Neighbors [][]int

	// AtomFeatures and BondFeatures are the encoded input tensors, one row
	// per atom / per directed bond.
	AtomFeatures [][]float32
	BondFeatures [][]float32
}

// BuilderOptions tunes graph construction.
type BuilderOptions struct {
	// MaxAtoms rejects molecules larger than this; 0 means DefaultMaxAtoms.
	MaxAtoms int
}

// Builder converts molecules into graphs. It is stateless and safe for
// concurrent use.
type Builder struct {
	maxAtoms int
}

// NewBuilder creates a graph builder.
func NewBuilder(opts BuilderOptions) *Builder {
	max := opts.MaxAtoms
	if max <= 0 {
		max = DefaultMaxAtoms
	}
	return &Builder{maxAtoms: max}
}

// Build constructs the directed graph for a parsed molecule.
func (b *Builder) Build(mol *chem.Molecule) (*Graph, error) {
	if mol == nil || len(mol.Atoms) == 0 {
		return nil, errors.New(errors.CodeGraphBuild, "molecule has no atoms")
	}
	if len(mol.Atoms) > b.maxAtoms {
		return nil, errors.Newf(errors.CodeGraphTooLarge,
			"molecule has %d atoms, exceeds max %d", len(mol.Atoms), b.maxAtoms).
			WithDetail("smiles=" + mol.SMILES)
	}

	n := len(mol.Atoms)
	nb := 2 * len(mol.Bonds)

	g := &Graph{
		SMILES:           mol.SMILES,
		NumAtoms:         n,
		NumDirectedBonds: nb,
		AtomBonds:        make([][]int, n),
		BondAtom:         make([]int, nb),
		BondSource:       make([]int, nb),
		ReverseBond:      make([]int, nb),
		Neighbors:        make([][]int, n),
		AtomFeatures:     make([][]float32, n),
		BondFeatures:     make([][]float32, nb),
	}

	for k, bond := range mol.Bonds {
		fwd, rev := 2*k, 2*k+1

		g.BondSource[fwd], g.BondAtom[fwd] = bond.From, bond.To
		g.BondSource[rev], g.BondAtom[rev] = bond.To, bond.From
		g.ReverseBond[fwd] = rev
		g.ReverseBond[rev] = fwd

		g.AtomBonds[bond.From] = append(g.AtomBonds[bond.From], fwd)
		g.AtomBonds[bond.To] = append(g.AtomBonds[bond.To], rev)
		g.Neighbors[bond.From] = append(g.Neighbors[bond.From], bond.To)
		g.Neighbors[bond.To] = append(g.Neighbors[bond.To], bond.From)

		bf := encodeBondFeatures(bond)
		g.BondFeatures[fwd] = bf
		g.BondFeatures[rev] = bf
	}

	for i := range mol.Atoms {
		g.AtomFeatures[i] = encodeAtomFeatures(mol.Atoms[i])
		if g.AtomBonds[i] == nil {
			g.AtomBonds[i] = []int{}
			g.Neighbors[i] = []int{}
		}
	}

	return g, nil
}

// Validate checks the structural invariants of the four relations. A graph
// produced by Build always passes; the check exists for graphs restored from
// caches or external stores.
func (g *Graph) Validate() error {
	if len(g.BondAtom) != g.NumDirectedBonds ||
		len(g.BondSource) != g.NumDirectedBonds ||
		len(g.ReverseBond) != g.NumDirectedBonds {
		return errors.New(errors.CodeGraphInvariant, "directed bond relation length mismatch")
	}
	if len(g.AtomBonds) != g.NumAtoms || len(g.Neighbors) != g.NumAtoms {
		return errors.New(errors.CodeGraphInvariant, "atom relation length mismatch")
	}

	for e := 0; e < g.NumDirectedBonds; e++ {
		r := g.ReverseBond[e]
		if r < 0 || r >= g.NumDirectedBonds || r == e {
			return errors.Newf(errors.CodeGraphInvariant, "bond %d has invalid reverse %d", e, r)
		}
		if g.ReverseBond[r] != e {
			return errors.Newf(errors.CodeGraphInvariant, "bonds %d and %d are not mutual reverses", e, r)
		}
		if g.BondAtom[e] != g.BondSource[r] || g.BondSource[e] != g.BondAtom[r] {
			return errors.Newf(errors.CodeGraphInvariant, "bond %d endpoints disagree with reverse %d", e, r)
		}
	}

	for a := 0; a < g.NumAtoms; a++ {
		if len(g.AtomBonds[a]) != len(g.Neighbors[a]) {
			return errors.Newf(errors.CodeGraphInvariant,
				"atom %d has %d bonds but %d neighbors", a, len(g.AtomBonds[a]), len(g.Neighbors[a]))
		}
		for i, e := range g.AtomBonds[a] {
			if e < 0 || e >= g.NumDirectedBonds {
				return errors.Newf(errors.CodeGraphInvariant, "atom %d references invalid bond %d", a, e)
			}
			if g.BondSource[e] != a {
				return errors.Newf(errors.CodeGraphInvariant, "bond %d does not originate at atom %d", e, a)
			}
			if g.BondAtom[e] != g.Neighbors[a][i] {
				return errors.Newf(errors.CodeGraphInvariant,
					"atom %d neighbor %d disagrees with bond %d destination", a, i, e)
			}
		}
	}

	return nil
}
