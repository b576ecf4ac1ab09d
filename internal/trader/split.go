package trader

// splitOrderVolume chops a volume into parts of at most maxPerOrder shares.
// Every part except the last is exactly maxPerOrder; the parts sum to the
// input. 250000 with a 100000 cap becomes [100000, 100000, 50000].
func splitOrderVolume(volume, maxPerOrder int64) []int64 {
	if volume <= maxPerOrder {
		return []int64{volume}
	}

	var parts []int64
	remaining := volume
	for remaining > 0 {
		if remaining > maxPerOrder {
			parts = append(parts, maxPerOrder)
			remaining -= maxPerOrder
		} else {
			parts = append(parts, remaining)
			remaining = 0
		}
	}
	return parts
}
