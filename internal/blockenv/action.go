package blockenv

// Action ids pack a placement as row*N*maxBlocks + col*maxBlocks + blockIndex.
// The action space and any network output width are identical by
// construction; ids are never remapped by modulo anywhere.

// ActionSpaceSize returns the total number of encodable actions.
func ActionSpaceSize(n, maxBlocks int) int { return n * n * maxBlocks }

// EncodeAction packs (row, col, blockIndex) into a single action id.
func EncodeAction(row, col, block, n, maxBlocks int) int {
	return row*n*maxBlocks + col*maxBlocks + block
}

// DecodeAction unpacks an action id into (row, col, blockIndex). It is the
// exact inverse of EncodeAction for ids in [0, ActionSpaceSize).
func DecodeAction(action, n, maxBlocks int) (row, col, block int) {
	block = action % maxBlocks
	action /= maxBlocks
	col = action % n
	row = action / n
	return row, col, block
}
