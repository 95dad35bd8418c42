// Mesh-text loading is CLI-only glue: a trivial whitespace-delimited
// format that makes the CLI and its tests runnable end-to-end. It is not a stand-in for the out-of-scope mesh-file-I/O
// collaborator spec.md §1 names — production mesh tables are built by
// mesh.Build directly from whatever loader a caller already has.
package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pthm-cable/mmc/mesh"
)

// loadMeshText reads the layout:
//
//	<nnode>
//	x y z                 (nnode lines, stored at 1..nnode; index 0 is an unused sentinel, not in the file)
//	<nelem>
//	n0 n1 n2 n3 nb0 nb1 nb2 nb3 prop   (nelem lines, stored at 1..nelem; index 0 is not in the file)
//	<nmedium>
//	mua mus g n           (nmedium lines; index 0 is the background medium)
//	<ndetector>
//	x y z r               (ndetector lines)
//
// Blank lines and lines starting with '#' are skipped.
func loadMeshText(r io.Reader) (*mesh.Mesh, error) {
	sc := newTokenScanner(r)

	nnode, err := sc.nextInt("node count")
	if err != nil {
		return nil, err
	}
	nodes := make([]mesh.Node, nnode+1)
	for i := 1; i <= nnode; i++ {
		x, err := sc.nextFloat("node.x")
		if err != nil {
			return nil, err
		}
		y, err := sc.nextFloat("node.y")
		if err != nil {
			return nil, err
		}
		z, err := sc.nextFloat("node.z")
		if err != nil {
			return nil, err
		}
		nodes[i] = mesh.Node{X: x, Y: y, Z: z}
	}

	nelem, err := sc.nextInt("elem count")
	if err != nil {
		return nil, err
	}
	elems := make([]mesh.Tet, nelem+1)
	faceNb := make([][4]int32, nelem+1)
	elemProp := make([]int32, nelem+1)
	for i := 1; i <= nelem; i++ {
		var t mesh.Tet
		for k := 0; k < 4; k++ {
			v, err := sc.nextInt("elem.node")
			if err != nil {
				return nil, err
			}
			t.N[k] = int32(v)
		}
		elems[i] = t
		var nb [4]int32
		for k := 0; k < 4; k++ {
			v, err := sc.nextInt("elem.faceNb")
			if err != nil {
				return nil, err
			}
			nb[k] = int32(v)
		}
		faceNb[i] = nb
		prop, err := sc.nextInt("elem.prop")
		if err != nil {
			return nil, err
		}
		elemProp[i] = int32(prop)
	}

	nmedium, err := sc.nextInt("medium count")
	if err != nil {
		return nil, err
	}
	media := make([]mesh.Medium, nmedium)
	for i := 0; i < nmedium; i++ {
		mua, err := sc.nextFloat("medium.mua")
		if err != nil {
			return nil, err
		}
		mus, err := sc.nextFloat("medium.mus")
		if err != nil {
			return nil, err
		}
		g, err := sc.nextFloat("medium.g")
		if err != nil {
			return nil, err
		}
		n, err := sc.nextFloat("medium.n")
		if err != nil {
			return nil, err
		}
		media[i] = mesh.Medium{Mua: mua, Mus: mus, G: g, N: n}
	}

	ndet, err := sc.nextInt("detector count")
	if err != nil {
		return nil, err
	}
	detectors := make([]mesh.Detector, ndet)
	for i := 0; i < ndet; i++ {
		x, err := sc.nextFloat("det.x")
		if err != nil {
			return nil, err
		}
		y, err := sc.nextFloat("det.y")
		if err != nil {
			return nil, err
		}
		z, err := sc.nextFloat("det.z")
		if err != nil {
			return nil, err
		}
		rad, err := sc.nextFloat("det.r")
		if err != nil {
			return nil, err
		}
		detectors[i] = mesh.Detector{Pos: [3]float64{x, y, z}, R: rad}
	}

	return mesh.Build(nodes, elems, faceNb, elemProp, media, detectors)
}

// tokenScanner pulls whitespace-separated tokens out of a reader,
// skipping blank lines and '#' comments.
type tokenScanner struct {
	sc     *bufio.Scanner
	tokens []string
}

func newTokenScanner(r io.Reader) *tokenScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &tokenScanner{sc: sc}
}

func (t *tokenScanner) next(what string) (string, error) {
	for len(t.tokens) == 0 {
		if !t.sc.Scan() {
			if err := t.sc.Err(); err != nil {
				return "", fmt.Errorf("meshtext: reading %s: %w", what, err)
			}
			return "", fmt.Errorf("meshtext: unexpected end of input reading %s", what)
		}
		line := strings.TrimSpace(t.sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t.tokens = strings.Fields(line)
	}
	tok := t.tokens[0]
	t.tokens = t.tokens[1:]
	return tok, nil
}

func (t *tokenScanner) nextInt(what string) (int, error) {
	tok, err := t.next(what)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("meshtext: %s: %q is not an integer", what, tok)
	}
	return v, nil
}

func (t *tokenScanner) nextFloat(what string) (float64, error) {
	tok, err := t.next(what)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("meshtext: %s: %q is not a number", what, tok)
	}
	return v, nil
}
