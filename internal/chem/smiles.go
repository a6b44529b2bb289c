package chem

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/qsarlab/molgraph/pkg/errors"
)

// maxSMILESLength guards against pathological inputs in bulk ingestion.
const maxSMILESLength = 5000

// smilesCharset is the allowed character set for SMILES notation. This is a
// cheap pre-filter; structural validation happens during parsing.
var smilesCharset = regexp.MustCompile(`^[A-Za-z0-9@+\-\[\]()=#:/\\%.]+$`)

// Validate performs lightweight structural validation of a SMILES string:
// length, character set and bracket balance. It does not guarantee the string
// parses; use ParseSMILES for that.
func Validate(smiles string) error {
	if smiles == "" {
		return errors.New(errors.CodeInvalidSMILES, "SMILES string is empty")
	}
	if len(smiles) > maxSMILESLength {
		return errors.Newf(errors.CodeInvalidSMILES, "SMILES exceeds maximum length %d", maxSMILESLength)
	}
	if !smilesCharset.MatchString(smiles) {
		return errors.New(errors.CodeInvalidSMILES, "SMILES contains invalid characters").
			WithDetail("smiles=" + smiles)
	}
	if !balancedBrackets(smiles) {
		return errors.New(errors.CodeInvalidSMILES, "SMILES has unbalanced brackets").
			WithDetail("smiles=" + smiles)
	}
	return nil
}

// Canonicalize returns the normalised form of a SMILES string used as the
// deduplication key: whitespace-trimmed and validated. Full chemistry
// canonicalisation (atom renumbering, kekulisation) is out of scope; the
// datasets this pipeline consumes ship pre-canonicalised SMILES.
func Canonicalize(smiles string) (string, error) {
	s := strings.TrimSpace(smiles)
	if err := Validate(s); err != nil {
		return "", err
	}
	return s, nil
}

// balancedBrackets checks that [ ] and ( ) are balanced and correctly nested.
func balancedBrackets(s string) bool {
	var stack []rune
	for _, ch := range s {
		switch ch {
		case '[', '(':
			stack = append(stack, ch)
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return false
			}
			stack = stack[:len(stack)-1]
		case ')':
			if len(stack) == 0 || stack[len(stack)-1] != '(' {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

// ringRef tracks an open ring-bond closure: the atom that opened it and the
// bond order written before the closure digit, if any.
type ringRef struct {
	atom  int
	order BondOrder
}

// parser holds the state of a single ParseSMILES run.
type parser struct {
	runes   []rune
	pos     int
	atoms   []Atom
	bonds   []Bond
	bracket []bool // per atom: written as a bracket atom
	prev    int    // index of the atom a new bond attaches to, -1 at start
	stack   []int  // branch return points
	pending BondOrder
	rings   map[int]ringRef
}

// ParseSMILES parses a SMILES string into a molecule connection table.
// Multi-fragment inputs (dot-separated) are rejected; records carrying salts
// or mixtures are expected to be stripped upstream. Failures return typed
// errors so callers can distinguish drop-the-record from abort-the-run.
func ParseSMILES(smiles string) (*Molecule, error) {
	s := strings.TrimSpace(smiles)
	if err := Validate(s); err != nil {
		return nil, err
	}

	p := &parser{
		runes: []rune(s),
		prev:  -1,
		rings: make(map[int]ringRef),
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	if len(p.atoms) == 0 {
		return nil, errors.New(errors.CodeInvalidSMILES, "no atoms in SMILES").
			WithDetail("smiles=" + s)
	}
	if len(p.rings) > 0 {
		return nil, errors.Newf(errors.CodeUnmatchedRingBond,
			"%d ring bond(s) opened but never closed", len(p.rings)).
			WithDetail("smiles=" + s)
	}
	if p.pending != 0 {
		return nil, errors.New(errors.CodeInvalidSMILES, "dangling bond symbol at end of SMILES").
			WithDetail("smiles=" + s)
	}

	mol := &Molecule{SMILES: s, Atoms: p.atoms, Bonds: p.bonds}
	p.finalize(mol)
	return mol, nil
}

func (p *parser) run() error {
	for p.pos < len(p.runes) {
		ch := p.runes[p.pos]
		switch {
		case ch == '(':
			if p.prev < 0 {
				return errors.New(errors.CodeInvalidSMILES, "branch opened before any atom")
			}
			p.stack = append(p.stack, p.prev)
			p.pos++

		case ch == ')':
			if len(p.stack) == 0 {
				return errors.New(errors.CodeInvalidSMILES, "branch closed without opening")
			}
			p.prev = p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
			p.pos++

		case ch == '-':
			p.pending = BondSingle
			p.pos++
		case ch == '=':
			p.pending = BondDouble
			p.pos++
		case ch == '#':
			p.pending = BondTriple
			p.pos++
		case ch == ':':
			p.pending = BondAromatic
			p.pos++
		case ch == '/' || ch == '\\':
			// Stereo bond markers carry single-bond order; the up/down
			// geometry is not interpreted.
			p.pending = BondSingle
			p.pos++

		case ch == '.':
			return errors.New(errors.CodeMultiFragment, "multi-fragment SMILES not supported").
				WithDetail("smiles=" + string(p.runes))

		case ch == '[':
			if err := p.parseBracketAtom(); err != nil {
				return err
			}

		case ch == '%' || unicode.IsDigit(ch):
			if err := p.parseRingClosure(); err != nil {
				return err
			}

		case unicode.IsLetter(ch):
			if err := p.parseOrganicAtom(); err != nil {
				return err
			}

		default:
			return errors.Newf(errors.CodeInvalidSMILES, "unexpected character %q at position %d", ch, p.pos)
		}
	}
	return nil
}

// addAtom appends the atom, bonds it to the previous atom if one exists, and
// makes it the new attachment point.
func (p *parser) addAtom(a Atom, isBracket bool) {
	idx := len(p.atoms)
	p.atoms = append(p.atoms, a)
	p.bracket = append(p.bracket, isBracket)
	if p.prev >= 0 {
		p.bonds = append(p.bonds, Bond{
			From:  p.prev,
			To:    idx,
			Order: p.resolveOrder(p.prev, idx),
		})
	}
	p.pending = 0
	p.prev = idx
}

// resolveOrder picks the bond order between two atoms: an explicit bond
// symbol wins, otherwise two aromatic atoms bond aromatically, otherwise
// single.
func (p *parser) resolveOrder(a, b int) BondOrder {
	if p.pending != 0 {
		return p.pending
	}
	if p.atoms[a].Aromatic && p.atoms[b].Aromatic {
		return BondAromatic
	}
	return BondSingle
}

// parseOrganicAtom consumes an organic-subset atom (possibly aromatic
// lowercase, possibly two-letter like Cl/Br).
func (p *parser) parseOrganicAtom() error {
	ch := p.runes[p.pos]
	aromatic := unicode.IsLower(ch)
	symbol := string(unicode.ToUpper(ch))
	advance := 1

	// Two-letter organic-subset elements are always written with a trailing
	// lowercase letter: Cl, Br.
	if !aromatic && p.pos+1 < len(p.runes) && unicode.IsLower(p.runes[p.pos+1]) {
		two := symbol + string(p.runes[p.pos+1])
		if organicSubset[two] {
			symbol = two
			advance = 2
		}
	}

	num, ok := atomicNumbers[symbol]
	if !ok || !organicSubset[symbol] {
		return errors.Newf(errors.CodeUnknownElement, "element %q is not in the SMILES organic subset", symbol)
	}
	if aromatic && !aromaticSubset[symbol] {
		return errors.Newf(errors.CodeInvalidSMILES, "element %q cannot be aromatic", symbol)
	}

	p.addAtom(Atom{Symbol: symbol, AtomicNum: num, Aromatic: aromatic}, false)
	p.pos += advance
	return nil
}

// parseBracketAtom consumes a [...] atom: isotope, symbol, chirality,
// hydrogen count, charge and an ignored atom-class suffix.
func (p *parser) parseBracketAtom() error {
	start := p.pos
	end := start + 1
	for end < len(p.runes) && p.runes[end] != ']' {
		end++
	}
	if end >= len(p.runes) {
		return errors.Newf(errors.CodeInvalidSMILES, "unclosed bracket atom at position %d", start)
	}
	content := p.runes[start+1 : end]
	if len(content) == 0 {
		return errors.New(errors.CodeInvalidSMILES, "empty bracket atom")
	}

	var a Atom
	i := 0

	// Isotope prefix.
	for i < len(content) && unicode.IsDigit(content[i]) {
		a.Isotope = a.Isotope*10 + int(content[i]-'0')
		i++
	}

	// Element symbol: one uppercase plus optional lowercase, or a lowercase
	// aromatic symbol (c, n, o, p, s, se, as).
	if i >= len(content) || !unicode.IsLetter(content[i]) {
		return errors.New(errors.CodeInvalidSMILES, "bracket atom missing element symbol").
			WithDetail("atom=[" + string(content) + "]")
	}
	if unicode.IsLower(content[i]) {
		a.Aromatic = true
		sym := string(unicode.ToUpper(content[i]))
		i++
		// se and as are the only two-letter aromatic symbols.
		if i < len(content) && unicode.IsLower(content[i]) {
			two := sym + string(content[i])
			if aromaticSubset[two] {
				sym = two
				i++
			}
		}
		a.Symbol = sym
	} else {
		sym := string(content[i])
		i++
		// A lowercase letter extends the symbol only when the result is a
		// known element; [CH4] must not swallow the H.
		if i < len(content) && unicode.IsLower(content[i]) {
			two := sym + string(content[i])
			if _, ok := atomicNumbers[two]; ok {
				sym = two
				i++
			}
		}
		a.Symbol = sym
	}
	num, ok := atomicNumbers[a.Symbol]
	if !ok {
		return errors.Newf(errors.CodeUnknownElement, "unknown element %q", a.Symbol).
			WithDetail("atom=[" + string(content) + "]")
	}
	if a.Aromatic && !aromaticSubset[a.Symbol] {
		return errors.Newf(errors.CodeInvalidSMILES, "element %q cannot be aromatic", a.Symbol)
	}
	a.AtomicNum = num

	// Chirality markers.
	for i < len(content) && content[i] == '@' {
		a.Chirality++
		i++
	}
	if a.Chirality > 2 {
		return errors.New(errors.CodeInvalidSMILES, "invalid chirality specification").
			WithDetail("atom=[" + string(content) + "]")
	}

	// Explicit hydrogen count.
	if i < len(content) && content[i] == 'H' {
		i++
		if i < len(content) && unicode.IsDigit(content[i]) {
			h := 0
			for i < len(content) && unicode.IsDigit(content[i]) {
				h = h*10 + int(content[i]-'0')
				i++
			}
			a.Hydrogens = h
		} else {
			a.Hydrogens = 1
		}
	}

	// Formal charge: "+", "-", repeated signs, or a sign with digits.
	if i < len(content) && (content[i] == '+' || content[i] == '-') {
		sign := 1
		if content[i] == '-' {
			sign = -1
		}
		mark := content[i]
		count := 0
		for i < len(content) && content[i] == mark {
			count++
			i++
		}
		if i < len(content) && unicode.IsDigit(content[i]) {
			if count > 1 {
				return errors.New(errors.CodeInvalidSMILES, "malformed charge").
					WithDetail("atom=[" + string(content) + "]")
			}
			count = 0
			for i < len(content) && unicode.IsDigit(content[i]) {
				count = count*10 + int(content[i]-'0')
				i++
			}
		}
		a.Charge = sign * count
	}

	// Atom class suffix, parsed and discarded.
	if i < len(content) && content[i] == ':' {
		i++
		if i >= len(content) || !unicode.IsDigit(content[i]) {
			return errors.New(errors.CodeInvalidSMILES, "malformed atom class").
				WithDetail("atom=[" + string(content) + "]")
		}
		for i < len(content) && unicode.IsDigit(content[i]) {
			i++
		}
	}

	if i != len(content) {
		return errors.Newf(errors.CodeInvalidSMILES, "trailing characters in bracket atom: %q", string(content[i:]))
	}

	p.addAtom(a, true)
	p.pos = end + 1
	return nil
}

// parseRingClosure consumes a ring-bond digit (or %nn pair) attached to the
// previous atom. The first occurrence opens the closure; the second creates
// the bond back to the opening atom.
func (p *parser) parseRingClosure() error {
	if p.prev < 0 {
		return errors.New(errors.CodeInvalidSMILES, "ring closure before any atom")
	}

	var num int
	if p.runes[p.pos] == '%' {
		if p.pos+2 >= len(p.runes) || !unicode.IsDigit(p.runes[p.pos+1]) || !unicode.IsDigit(p.runes[p.pos+2]) {
			return errors.New(errors.CodeInvalidSMILES, "malformed %nn ring closure")
		}
		num = int(p.runes[p.pos+1]-'0')*10 + int(p.runes[p.pos+2]-'0')
		p.pos += 3
	} else {
		num = int(p.runes[p.pos] - '0')
		p.pos++
	}

	ref, open := p.rings[num]
	if !open {
		p.rings[num] = ringRef{atom: p.prev, order: p.pending}
		p.pending = 0
		return nil
	}
	delete(p.rings, num)

	if ref.atom == p.prev {
		return errors.Newf(errors.CodeUnmatchedRingBond, "ring bond %d closes on its own atom", num)
	}
	if ref.order != 0 && p.pending != 0 && ref.order != p.pending {
		return errors.Newf(errors.CodeInvalidSMILES, "conflicting bond orders on ring closure %d", num)
	}
	order := ref.order
	if p.pending != 0 {
		order = p.pending
	}
	if order == 0 {
		if p.atoms[ref.atom].Aromatic && p.atoms[p.prev].Aromatic {
			order = BondAromatic
		} else {
			order = BondSingle
		}
	}
	p.bonds = append(p.bonds, Bond{From: ref.atom, To: p.prev, Order: order})
	p.pending = 0
	return nil
}

// finalize computes per-atom degree, implicit hydrogen counts for
// organic-subset atoms, aromatic bond flags and ring membership.
func (p *parser) finalize(mol *Molecule) {
	for i := range mol.Bonds {
		b := &mol.Bonds[i]
		b.Aromatic = b.Order == BondAromatic
		mol.Atoms[b.From].Degree++
		mol.Atoms[b.To].Degree++
	}

	// Implicit hydrogens from standard valence. Aromatic bonds contribute 1.5
	// to the bond order sum so that e.g. benzene carbons get one hydrogen.
	orderSum := make([]float64, len(mol.Atoms))
	for _, b := range mol.Bonds {
		w := float64(b.Order)
		if b.Order == BondAromatic {
			w = 1.5
		}
		orderSum[b.From] += w
		orderSum[b.To] += w
	}
	for i := range mol.Atoms {
		a := &mol.Atoms[i]
		if p.bracket[i] {
			continue // bracket atoms carry explicit hydrogen counts
		}
		valence, ok := defaultValence[a.AtomicNum]
		if !ok {
			continue
		}
		h := valence - int(math.Ceil(orderSum[i]))
		if h < 0 {
			h = 0
		}
		a.Hydrogens = h
	}

	markRings(mol)
}

// DebugString renders a compact connection-table dump for logging.
func (m *Molecule) DebugString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s atoms=%d bonds=%d", m.SMILES, len(m.Atoms), len(m.Bonds))
	return sb.String()
}
