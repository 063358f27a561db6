package ir

// ============================================================================
// 控制流分析：逆后序、支配树、自然循环
// ============================================================================

// PostOrder 返回从入口可达的块的后序序列
func (f *Function) PostOrder() []*Block {
	seen := make([]bool, f.nextBlk)
	order := make([]*Block, 0, len(f.Blocks))

	type frame struct {
		b *Block
		i int
	}
	stack := []frame{{b: f.Entry()}}
	seen[f.Entry().ID] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.i < len(top.b.Succs) {
			s := top.b.Succs[top.i]
			top.i++
			if !seen[s.ID] {
				seen[s.ID] = true
				stack = append(stack, frame{b: s})
			}
			continue
		}
		order = append(order, top.b)
		stack = stack[:len(stack)-1]
	}
	return order
}

// ReversePostOrder 返回逆后序序列（入口在前）
func (f *Function) ReversePostOrder() []*Block {
	po := f.PostOrder()
	for i, j := 0, len(po)-1; i < j; i, j = i+1, j-1 {
		po[i], po[j] = po[j], po[i]
	}
	return po
}

// DomTree 支配树
type DomTree struct {
	idom     []*Block
	children [][]*Block
	order    []int // 逆后序编号
}

// Dominators 计算支配树（Cooper-Harvey-Kennedy 迭代算法）
func (f *Function) Dominators() *DomTree {
	rpo := f.ReversePostOrder()
	n := f.nextBlk
	order := make([]int, n)
	for i := range order {
		order[i] = -1
	}
	for i, b := range rpo {
		order[b.ID] = i
	}

	idom := make([]*Block, n)
	entry := f.Entry()
	idom[entry.ID] = entry

	intersect := func(a, b *Block) *Block {
		for a != b {
			for order[a.ID] > order[b.ID] {
				a = idom[a.ID]
			}
			for order[b.ID] > order[a.ID] {
				b = idom[b.ID]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			var nd *Block
			for _, p := range b.Preds {
				if order[p.ID] < 0 || idom[p.ID] == nil {
					continue
				}
				if nd == nil {
					nd = p
				} else {
					nd = intersect(p, nd)
				}
			}
			if nd != nil && idom[b.ID] != nd {
				idom[b.ID] = nd
				changed = true
			}
		}
	}

	t := &DomTree{idom: idom, children: make([][]*Block, n), order: order}
	for _, b := range rpo[1:] {
		if d := idom[b.ID]; d != nil {
			t.children[d.ID] = append(t.children[d.ID], b)
		}
	}
	return t
}

// Idom 直接支配者（入口返回 nil）
func (t *DomTree) Idom(b *Block) *Block {
	d := t.idom[b.ID]
	if d == b {
		return nil
	}
	return d
}

// Children 支配树子节点
func (t *DomTree) Children(b *Block) []*Block {
	return t.children[b.ID]
}

// Reachable 块是否从入口可达
func (t *DomTree) Reachable(b *Block) bool {
	return b.ID < len(t.order) && t.order[b.ID] >= 0
}

// Dominates a 是否支配 b
func (t *DomTree) Dominates(a, b *Block) bool {
	if !t.Reachable(a) || !t.Reachable(b) {
		return false
	}
	for b != nil {
		if a == b {
			return true
		}
		b = t.Idom(b)
	}
	return false
}

// Frontiers 计算支配边界
func (t *DomTree) Frontiers(f *Function) [][]*Block {
	df := make([][]*Block, f.nextBlk)
	for _, b := range f.Blocks {
		if len(b.Preds) < 2 || !t.Reachable(b) {
			continue
		}
		for _, p := range b.Preds {
			if !t.Reachable(p) {
				continue
			}
			for r := p; r != nil && r != t.idom[b.ID]; r = t.Idom(r) {
				if !containsBlock(df[r.ID], b) {
					df[r.ID] = append(df[r.ID], b)
				}
			}
		}
	}
	return df
}

func containsBlock(list []*Block, b *Block) bool {
	for _, c := range list {
		if c == b {
			return true
		}
	}
	return false
}

// Loop 自然循环
type Loop struct {
	Header *Block
	Blocks map[*Block]bool
}

// Contains 块是否属于循环
func (l *Loop) Contains(b *Block) bool {
	return l.Blocks[b]
}

// Loops 根据回边找出自然循环（同一个头的回边合并），外层循环在前
func (f *Function) Loops(t *DomTree) []*Loop {
	byHeader := map[*Block]*Loop{}
	var loops []*Loop
	for _, b := range f.ReversePostOrder() {
		for _, s := range b.Succs {
			if !t.Dominates(s, b) {
				continue
			}
			l := byHeader[s]
			if l == nil {
				l = &Loop{Header: s, Blocks: map[*Block]bool{s: true}}
				byHeader[s] = l
				loops = append(loops, l)
			}
			work := []*Block{b}
			for len(work) > 0 {
				x := work[len(work)-1]
				work = work[:len(work)-1]
				if l.Blocks[x] || !t.Reachable(x) {
					continue
				}
				l.Blocks[x] = true
				work = append(work, x.Preds...)
			}
		}
	}
	return loops
}
