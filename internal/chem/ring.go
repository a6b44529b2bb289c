package chem

// markRings flags every bond that lies on a cycle, and every atom incident to
// such a bond. A bond is in a ring exactly when it is not a bridge of the
// molecular graph, so a single bridge-finding DFS (Tarjan low-link) suffices;
// no ring enumeration is needed.
func markRings(mol *Molecule) {
	n := len(mol.Atoms)
	if n == 0 || len(mol.Bonds) == 0 {
		return
	}

	type halfEdge struct {
		to   int
		bond int
	}
	adj := make([][]halfEdge, n)
	for bi, b := range mol.Bonds {
		adj[b.From] = append(adj[b.From], halfEdge{to: b.To, bond: bi})
		adj[b.To] = append(adj[b.To], halfEdge{to: b.From, bond: bi})
	}

	disc := make([]int, n)
	low := make([]int, n)
	for i := range disc {
		disc[i] = -1
	}
	timer := 0

	var dfs func(v, parentBond int)
	dfs = func(v, parentBond int) {
		disc[v] = timer
		low[v] = timer
		timer++
		for _, e := range adj[v] {
			if e.bond == parentBond {
				continue
			}
			if disc[e.to] == -1 {
				dfs(e.to, e.bond)
				if low[e.to] < low[v] {
					low[v] = low[e.to]
				}
				if low[e.to] <= disc[v] {
					mol.Bonds[e.bond].InRing = true
				}
			} else {
				if disc[e.to] < low[v] {
					low[v] = disc[e.to]
				}
				if disc[e.to] < disc[v] {
					mol.Bonds[e.bond].InRing = true // back edge closes a cycle
				}
			}
		}
	}

	for v := 0; v < n; v++ {
		if disc[v] == -1 {
			dfs(v, -1)
		}
	}

	for _, b := range mol.Bonds {
		if b.InRing {
			mol.Atoms[b.From].InRing = true
			mol.Atoms[b.To].InRing = true
		}
	}
}
