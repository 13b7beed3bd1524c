package hako

import (
	"math/bits"
	"strconv"
	"strings"
)

// Arch is a set of up to 256 component IDs. It names an archetype: every
// entity whose component set equals the same Arch lives in the same
// ArchetypeStorage.
type Arch [4]uint64

// MakeArch builds an Arch from a list of component IDs.
func MakeArch(ids ...ComponentID) Arch {
	var m Arch
	for _, id := range ids {
		m.Set(id)
	}
	return m
}

// Set enables the bit corresponding to the given component ID.
func (m *Arch) Set(id ComponentID) {
	i := id >> 6 // (bit / 64) to find the uint64 index
	o := id & 63 // (bit % 64) to find the bit offset
	m[i] |= uint64(1) << uint64(o)
}

// Unset disables the bit corresponding to the given component ID.
func (m *Arch) Unset(id ComponentID) {
	i := id >> 6
	o := id & 63
	m[i] &= ^(uint64(1) << uint64(o))
}

// Has checks if a specific component is part of the set.
func (m Arch) Has(id ComponentID) bool {
	i := id >> 6
	o := id & 63
	return (m[i] & (uint64(1) << uint64(o))) != 0
}

// Contains checks if all the bits set in sub are also set in m. Queries use it
// to decide whether an archetype is a superset of the accessed components.
func (m Arch) Contains(sub Arch) bool {
	return (m[0]&sub[0]) == sub[0] &&
		(m[1]&sub[1]) == sub[1] &&
		(m[2]&sub[2]) == sub[2] &&
		(m[3]&sub[3]) == sub[3]
}

// Intersects checks if this set has any bits in common with another set.
func (m Arch) Intersects(other Arch) bool {
	return (m[0]&other[0] != 0) ||
		(m[1]&other[1] != 0) ||
		(m[2]&other[2] != 0) ||
		(m[3]&other[3] != 0)
}

// Or returns the union of both sets.
func (m Arch) Or(other Arch) Arch {
	return Arch{m[0] | other[0], m[1] | other[1], m[2] | other[2], m[3] | other[3]}
}

// And returns the intersection of both sets.
func (m Arch) And(other Arch) Arch {
	return Arch{m[0] & other[0], m[1] & other[1], m[2] & other[2], m[3] & other[3]}
}

// AndNot returns the bits set in m but not in other.
func (m Arch) AndNot(other Arch) Arch {
	return Arch{m[0] &^ other[0], m[1] &^ other[1], m[2] &^ other[2], m[3] &^ other[3]}
}

// IsZero returns true if no bits are set.
func (m Arch) IsZero() bool {
	return m[0] == 0 && m[1] == 0 && m[2] == 0 && m[3] == 0
}

// Count returns the number of components in the set.
func (m Arch) Count() int {
	return bits.OnesCount64(m[0]) +
		bits.OnesCount64(m[1]) +
		bits.OnesCount64(m[2]) +
		bits.OnesCount64(m[3])
}

// ForEach calls fn for every component ID in ascending order.
func (m Arch) ForEach(fn func(id ComponentID)) {
	for w, word := range m {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			fn(ComponentID(w<<6 | b))
			word &= word - 1
		}
	}
}

// IDs returns the component IDs in ascending order.
func (m Arch) IDs() []ComponentID {
	ids := make([]ComponentID, 0, m.Count())
	m.ForEach(func(id ComponentID) {
		ids = append(ids, id)
	})
	return ids
}

// String formats the set as {1,4,7}.
func (m Arch) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	m.ForEach(func(id ComponentID) {
		if !first {
			sb.WriteByte(',')
		}
		first = false
		sb.WriteString(strconv.Itoa(int(id)))
	})
	sb.WriteByte('}')
	return sb.String()
}

// With returns a copy of m with id added.
func (m Arch) With(id ComponentID) Arch {
	m.Set(id)
	return m
}

// Without returns a copy of m with id removed.
func (m Arch) Without(id ComponentID) Arch {
	m.Unset(id)
	return m
}
