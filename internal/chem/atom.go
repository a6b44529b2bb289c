// Package chem implements the chemistry toolkit used by the pipeline: a
// SMILES parser producing atom/bond connection tables, lightweight string
// validation, and ring perception. It intentionally covers only what graph
// construction needs; full cheminformatics (kekulisation, stereo chemistry,
// tautomer handling) stays out of scope.
package chem

// Atom is a parsed heavy atom in a molecule.
type Atom struct {
	// Symbol is the element symbol in standard capitalisation ("C", "Cl").
	Symbol string
	// AtomicNum is the element's atomic number.
	AtomicNum int
	// Aromatic reports whether the atom was written lowercase in SMILES.
	Aromatic bool
	// Charge is the formal charge from a bracket atom, 0 otherwise.
	Charge int
	// Isotope is the isotope mass from a bracket atom, 0 when unspecified.
	Isotope int
	// Hydrogens is the hydrogen count: explicit for bracket atoms, estimated
	// from standard valence for organic-subset atoms.
	Hydrogens int
	// Degree is the number of explicit bonds incident to the atom.
	Degree int
	// InRing reports whether the atom lies on at least one cycle.
	InRing bool
	// Chirality is 0 (none), 1 (@) or 2 (@@); parsed but not interpreted.
	Chirality int
}

// BondOrder is the formal order of a chemical bond.
type BondOrder int

const (
	BondSingle   BondOrder = 1
	BondDouble   BondOrder = 2
	BondTriple   BondOrder = 3
	BondAromatic BondOrder = 4
)

// Bond is an undirected chemical bond between two atoms, identified by their
// indices into Molecule.Atoms.
type Bond struct {
	From, To int
	Order    BondOrder
	// Aromatic reports whether the bond is part of an aromatic system.
	Aromatic bool
	// InRing reports whether the bond lies on a cycle.
	InRing bool
}

// Molecule is the parsed connection table for a single-fragment molecule.
type Molecule struct {
	// SMILES is the input string the molecule was parsed from.
	SMILES string
	Atoms  []Atom
	Bonds  []Bond
}

// atomicNumbers maps element symbols to atomic numbers. The set covers the
// elements that occur in drug-like and materials datasets; anything else is
// rejected as an unknown element.
var atomicNumbers = map[string]int{
	"H": 1, "He": 2, "Li": 3, "Be": 4, "B": 5, "C": 6, "N": 7, "O": 8,
	"F": 9, "Ne": 10, "Na": 11, "Mg": 12, "Al": 13, "Si": 14, "P": 15,
	"S": 16, "Cl": 17, "Ar": 18, "K": 19, "Ca": 20, "Ti": 22, "Cr": 24,
	"Mn": 25, "Fe": 26, "Co": 27, "Ni": 28, "Cu": 29, "Zn": 30, "Ga": 31,
	"Ge": 32, "As": 33, "Se": 34, "Br": 35, "Zr": 40, "Mo": 42, "Ru": 44,
	"Rh": 45, "Pd": 46, "Ag": 47, "Cd": 48, "In": 49, "Sn": 50, "Sb": 51,
	"Te": 52, "I": 53, "Ba": 56, "W": 74, "Re": 75, "Os": 76, "Ir": 77,
	"Pt": 78, "Au": 79, "Hg": 80, "Tl": 81, "Pb": 82, "Bi": 83,
}

// organicSubset lists elements that may appear outside brackets in SMILES.
var organicSubset = map[string]bool{
	"B": true, "C": true, "N": true, "O": true, "P": true, "S": true,
	"F": true, "Cl": true, "Br": true, "I": true,
}

// aromaticSubset lists elements that may appear as lowercase aromatic atoms.
var aromaticSubset = map[string]bool{
	"B": true, "C": true, "N": true, "O": true, "P": true, "S": true,
	"Se": true, "As": true,
}

// defaultValence gives the standard valence used to estimate implicit
// hydrogens for organic-subset atoms.
var defaultValence = map[int]int{
	5: 3, 6: 4, 7: 3, 8: 2, 9: 1, 15: 3, 16: 2, 17: 1, 35: 1, 53: 1,
}

// AtomicNumber returns the atomic number for an element symbol, or 0 when the
// symbol is not recognised.
func AtomicNumber(symbol string) int {
	return atomicNumbers[symbol]
}
