package btree

// rebalanceChild repairs an underflowed child of in (stored at
// parentPageID) at index idx, preferring the LEFT sibling for both borrow
// and merge when both siblings qualify — the tie-break called for when a
// child has viable siblings on either side (spec §4.C underflow handling).
// in is mutated in place and the caller is responsible for persisting it.
func (t *Tree) rebalanceChild(parentPageID uint64, in *InternalNode, idx int) error {
	hasLeft := idx > 0
	hasRight := idx < len(in.Children)-1

	childNode, err := t.fetch(in.Children[idx])
	if err != nil {
		return err
	}

	if leaf, ok := TryAsLeaf(childNode); ok {
		child := asMutableLeaf(leaf)
		if hasLeft {
			leftNode, err := t.fetch(in.Children[idx-1])
			if err != nil {
				return err
			}
			left := asMutableLeaf(leftNode)
			if len(left.Keys) > MinEntries {
				borrowLeafFromLeft(left, child)
				in.Keys[idx-1] = child.Keys[0]
				return t.storeAll(in.Children[idx-1], left, in.Children[idx], child)
			}
		}
		if hasRight {
			rightNode, err := t.fetch(in.Children[idx+1])
			if err != nil {
				return err
			}
			right := asMutableLeaf(rightNode)
			if len(right.Keys) > MinEntries {
				borrowLeafFromRight(child, right)
				in.Keys[idx] = right.Keys[0]
				return t.storeAll(in.Children[idx], child, in.Children[idx+1], right)
			}
		}
		if hasLeft {
			leftNode, err := t.fetch(in.Children[idx-1])
			if err != nil {
				return err
			}
			left := asMutableLeaf(leftNode)
			left.Keys = append(left.Keys, child.Keys...)
			left.Values = append(left.Values, child.Values...)
			left.NextLeaf_ = child.NextLeaf_
			if err := t.store(in.Children[idx-1], left); err != nil {
				return err
			}
			t.freeAndForget(in.Children[idx])
			in.Keys = append(in.Keys[:idx-1], in.Keys[idx:]...)
			in.Children = append(in.Children[:idx], in.Children[idx+1:]...)
			return nil
		}
		// hasRight must hold: merge right into child.
		rightNode, err := t.fetch(in.Children[idx+1])
		if err != nil {
			return err
		}
		right := asMutableLeaf(rightNode)
		child.Keys = append(child.Keys, right.Keys...)
		child.Values = append(child.Values, right.Values...)
		child.NextLeaf_ = right.NextLeaf_
		if err := t.store(in.Children[idx], child); err != nil {
			return err
		}
		t.freeAndForget(in.Children[idx+1])
		in.Keys = append(in.Keys[:idx], in.Keys[idx+1:]...)
		in.Children = append(in.Children[:idx+1], in.Children[idx+2:]...)
		return nil
	}

	child := asMutableInternal(childNode)
	if hasLeft {
		leftNode, err := t.fetch(in.Children[idx-1])
		if err != nil {
			return err
		}
		left := asMutableInternal(leftNode)
		if len(left.Keys) > MinEntries {
			borrowInternalFromLeft(left, child, &in.Keys[idx-1])
			return t.storeAll(in.Children[idx-1], left, in.Children[idx], child)
		}
	}
	if hasRight {
		rightNode, err := t.fetch(in.Children[idx+1])
		if err != nil {
			return err
		}
		right := asMutableInternal(rightNode)
		if len(right.Keys) > MinEntries {
			borrowInternalFromRight(child, right, &in.Keys[idx])
			return t.storeAll(in.Children[idx], child, in.Children[idx+1], right)
		}
	}
	if hasLeft {
		leftNode, err := t.fetch(in.Children[idx-1])
		if err != nil {
			return err
		}
		left := asMutableInternal(leftNode)
		left.Keys = append(left.Keys, in.Keys[idx-1])
		left.Keys = append(left.Keys, child.Keys...)
		left.Children = append(left.Children, child.Children...)
		if err := t.store(in.Children[idx-1], left); err != nil {
			return err
		}
		t.freeAndForget(in.Children[idx])
		in.Keys = append(in.Keys[:idx-1], in.Keys[idx:]...)
		in.Children = append(in.Children[:idx], in.Children[idx+1:]...)
		return nil
	}
	rightNode, err := t.fetch(in.Children[idx+1])
	if err != nil {
		return err
	}
	right := asMutableInternal(rightNode)
	child.Keys = append(child.Keys, in.Keys[idx])
	child.Keys = append(child.Keys, right.Keys...)
	child.Children = append(child.Children, right.Children...)
	if err := t.store(in.Children[idx], child); err != nil {
		return err
	}
	t.freeAndForget(in.Children[idx+1])
	in.Keys = append(in.Keys[:idx], in.Keys[idx+1:]...)
	in.Children = append(in.Children[:idx+1], in.Children[idx+2:]...)
	return nil
}

func borrowLeafFromLeft(left, child *LeafNode) {
	n := len(left.Keys) - 1
	k, v := left.Keys[n], left.Values[n]
	left.Keys = left.Keys[:n]
	left.Values = left.Values[:n]
	child.Keys = append([][]byte{k}, child.Keys...)
	child.Values = append([]uint64{v}, child.Values...)
}

func borrowLeafFromRight(child, right *LeafNode) {
	k, v := right.Keys[0], right.Values[0]
	right.Keys = right.Keys[1:]
	right.Values = right.Values[1:]
	child.Keys = append(child.Keys, k)
	child.Values = append(child.Values, v)
}

// borrowInternalFromLeft rotates left's last child/key into child's front,
// pulling *sep (the parent's current separator for this pair) down as
// child's new first key and pushing left's last key up as the new sep.
func borrowInternalFromLeft(left, child *InternalNode, sep *[]byte) {
	n := len(left.Keys) - 1
	movedKey := left.Keys[n]
	movedChild := left.Children[len(left.Children)-1]
	left.Keys = left.Keys[:n]
	left.Children = left.Children[:len(left.Children)-1]

	child.Keys = append([][]byte{*sep}, child.Keys...)
	child.Children = append([]uint64{movedChild}, child.Children...)
	*sep = movedKey
}

func borrowInternalFromRight(child, right *InternalNode, sep *[]byte) {
	movedKey := right.Keys[0]
	movedChild := right.Children[0]
	right.Keys = right.Keys[1:]
	right.Children = right.Children[1:]

	child.Keys = append(child.Keys, *sep)
	child.Children = append(child.Children, movedChild)
	*sep = movedKey
}

func (t *Tree) storeAll(id1 uint64, n1 Node, id2 uint64, n2 Node) error {
	if err := t.store(id1, n1); err != nil {
		return err
	}
	return t.store(id2, n2)
}

func (t *Tree) freeAndForget(pageID uint64) {
	t.latches.Forget(pageID)
	_ = t.pool.FreePage(pageID)
}
