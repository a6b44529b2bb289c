package graph

import "github.com/qsarlab/molgraph/internal/chem"

// Atom feature layout. Total dimension = AtomFeatureDim.
//
//	[0..10]   Atomic number one-hot: H C N O F P S Cl Br I + other
//	[11..16]  Degree one-hot: 0..4, 5+
//	[17..21]  Formal charge one-hot: -2 -1 0 +1 +2 (clamped)
//	[22..26]  Hydrogen count one-hot: 0..3, 4+
//	[27]      Is aromatic
//	[28]      Is in ring
//	[29]      Atomic mass, normalised by 200
const (
	atomNumBins     = 11
	degreeBins      = 6
	chargeBins      = 5
	hydrogenBins    = 5
	atomBinaryFeats = 2
	atomScalarFeats = 1

	// AtomFeatureDim is the per-atom feature vector length.
	AtomFeatureDim = atomNumBins + degreeBins + chargeBins + hydrogenBins +
		atomBinaryFeats + atomScalarFeats // = 30
)

// Bond feature layout. Total dimension = BondFeatureDim.
//
//	[0..3]  Bond order one-hot: single double triple aromatic
//	[4]     Is aromatic
//	[5]     Is in ring
const (
	bondOrderBins = 4

	// BondFeatureDim is the per-directed-bond feature vector length.
	BondFeatureDim = bondOrderBins + 2 // = 6
)

// commonAtomicNums lists the elements with dedicated one-hot bins; everything
// else shares the trailing "other" bin.
var commonAtomicNums = []int{1, 6, 7, 8, 9, 15, 16, 17, 35, 53}

// atomicMass maps atomic number to mass for the common organic elements,
// pre-normalised by 200 to keep the scalar feature in [0, 1].
var atomicMass = map[int]float32{
	1: 1.008 / 200, 5: 10.81 / 200, 6: 12.011 / 200, 7: 14.007 / 200,
	8: 15.999 / 200, 9: 18.998 / 200, 14: 28.085 / 200, 15: 30.974 / 200,
	16: 32.06 / 200, 17: 35.45 / 200, 35: 79.904 / 200, 53: 126.90 / 200,
}

func atomicNumBin(atomicNum int) int {
	for i, a := range commonAtomicNums {
		if atomicNum == a {
			return i
		}
	}
	return atomNumBins - 1
}

// encodeAtomFeatures produces the per-atom feature vector.
func encodeAtomFeatures(a chem.Atom) []float32 {
	f := make([]float32, AtomFeatureDim)
	offset := 0

	f[offset+atomicNumBin(a.AtomicNum)] = 1
	offset += atomNumBins

	deg := a.Degree
	if deg >= degreeBins {
		deg = degreeBins - 1
	}
	f[offset+deg] = 1
	offset += degreeBins

	// Charge mapped -2..+2 onto bins 0..4.
	c := a.Charge + 2
	if c < 0 {
		c = 0
	}
	if c >= chargeBins {
		c = chargeBins - 1
	}
	f[offset+c] = 1
	offset += chargeBins

	h := a.Hydrogens
	if h >= hydrogenBins {
		h = hydrogenBins - 1
	}
	f[offset+h] = 1
	offset += hydrogenBins

	if a.Aromatic {
		f[offset] = 1
	}
	offset++
	if a.InRing {
		f[offset] = 1
	}
	offset++

	f[offset] = atomicMass[a.AtomicNum]

	return f
}

// encodeBondFeatures produces the per-bond feature vector. Forward and
// reverse directed bonds share the same features.
func encodeBondFeatures(b chem.Bond) []float32 {
	f := make([]float32, BondFeatureDim)

	order := int(b.Order) - 1
	if order < 0 {
		order = 0
	}
	if order >= bondOrderBins {
		order = bondOrderBins - 1
	}
	f[order] = 1

	if b.Aromatic {
		f[bondOrderBins] = 1
	}
	if b.InRing {
		f[bondOrderBins+1] = 1
	}

	return f
}
