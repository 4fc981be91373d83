package gsi

// Normalize repairs known quirks of the vendor payload in place before
// anything downstream consumes it. The game numbers observer slots
// 0-9 with 9 wrapping to the "0" key on the keyboard; renderer clients
// expect the 1-based key number, so 9 becomes 0 and everything else
// shifts up by one. Absent slots are treated as 0. Null allplayers
// entries are dropped instead of forwarded. Missing sub-objects are
// skipped; Normalize never fails.
func Normalize(raw *Raw) {
	if raw == nil {
		return
	}
	if raw.Player != nil {
		raw.Player.ObserverSlot = fixObserverSlot(raw.Player.ObserverSlot)
	}
	for id, p := range raw.AllPlayers {
		if p == nil {
			delete(raw.AllPlayers, id)
			continue
		}
		p.ObserverSlot = fixObserverSlot(p.ObserverSlot)
	}
}

func fixObserverSlot(slot *int) *int {
	v := 0
	if slot != nil {
		v = *slot
	}
	if v == 9 {
		v = 0
	} else {
		v++
	}
	return &v
}
