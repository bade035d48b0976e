package goboreal

// integer min
func intMin(a, b int) int {
	if a < b {
		return a
	}
	return b
}
