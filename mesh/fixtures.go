package mesh

// UnitTwoTet builds a minimal two-tet mesh sharing one interior face,
// spanning roughly a 1x1x1 mm cube. It exists for tests and worked
// examples elsewhere in this module (trace, accumulate, photon,
// dispatch) that need a small conforming mesh without a real mesh
// loader.
func UnitTwoTet(mua, mus, g, n float64) *Mesh {
	nodes := []Node{
		{}, // index 0 unused
		{X: 0, Y: 0, Z: 0},    // 1
		{X: 1, Y: 0, Z: 0},    // 2
		{X: 0, Y: 1, Z: 0},    // 3
		{X: 0, Y: 0, Z: 1},    // 4
		{X: 1, Y: 1, Z: 1},    // 5
	}
	elems := []Tet{
		{}, // index 0 unused
		{N: [4]int32{1, 2, 3, 4}},
		{N: [4]int32{2, 3, 4, 5}},
	}
	// Tet 1 face 0 is opposite local node 0 (=global node 1), i.e. the
	// face made of global nodes (2,3,4) -- exactly the face shared
	// with tet 2's face opposite its local node corresponding to
	// global node 5, which is local face 3 ({2,3,4} in tet 2's local
	// node order {2,3,4,5}).
	faceNb := [][4]int32{
		{},
		{2, 0, 0, 0},
		{0, 0, 0, 1},
	}
	elemProp := []int32{0, 1, 1}
	media := []Medium{
		{Mua: 0, Mus: 0, G: 0, N: 1}, // 0: background/void
		{Mua: mua, Mus: mus, G: g, N: n},
	}
	m, err := Build(nodes, elems, faceNb, elemProp, media, nil)
	if err != nil {
		panic(err) // fixture geometry is fixed and known-good
	}
	return m
}
