package syncer

import "slices"

// ChangeSet lists the records of one collection changed locally since the last publish.
type ChangeSet struct {
	Created []int `json:"created"`
	Updated []int `json:"updated"`
	Deleted []int `json:"deleted"`
}

func (c ChangeSet) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

func (c ChangeSet) Len() int {
	return len(c.Created) + len(c.Updated) + len(c.Deleted)
}

func (c ChangeSet) clone() ChangeSet {
	return ChangeSet{
		Created: slices.Clone(c.Created),
		Updated: slices.Clone(c.Updated),
		Deleted: slices.Clone(c.Deleted),
	}
}

func (c ChangeSet) created(id int) ChangeSet {
	next := c.clone()
	if !slices.Contains(next.Created, id) {
		next.Created = append(next.Created, id)
	}
	return next
}

// updated ignores records that were never published; their latest content goes out as a creation.
func (c ChangeSet) updated(id int) ChangeSet {
	next := c.clone()
	if slices.Contains(next.Created, id) || slices.Contains(next.Updated, id) {
		return next
	}
	next.Updated = append(next.Updated, id)
	return next
}

// deleted forgets unpublished records instead of recording a deletion.
func (c ChangeSet) deleted(id int) ChangeSet {
	next := c.clone()
	next.Updated = removeID(next.Updated, id)
	if slices.Contains(next.Created, id) {
		next.Created = removeID(next.Created, id)
		return next
	}
	if !slices.Contains(next.Deleted, id) {
		next.Deleted = append(next.Deleted, id)
	}
	return next
}

// renamed rewrites identifiers reassigned during a merge.
func (c ChangeSet) renamed(renames map[int]int) ChangeSet {
	if len(renames) == 0 {
		return c.clone()
	}
	rename := func(ids []int) []int {
		out := make([]int, 0, len(ids))
		for _, id := range ids {
			if next, ok := renames[id]; ok {
				id = next
			}
			out = append(out, id)
		}
		return out
	}
	return ChangeSet{
		Created: rename(c.Created),
		Updated: rename(c.Updated),
		Deleted: slices.Clone(c.Deleted),
	}
}

func removeID(ids []int, id int) []int {
	return slices.DeleteFunc(ids, func(candidate int) bool { return candidate == id })
}

// Intents holds both collections' pending changes. It is persisted with the local snapshots.
type Intents struct {
	Maintenance ChangeSet `json:"maintenance"`
	Components  ChangeSet `json:"components"`
}

func (i Intents) Empty() bool {
	return i.Maintenance.Empty() && i.Components.Empty()
}

func (i Intents) Len() int {
	return i.Maintenance.Len() + i.Components.Len()
}

func (i Intents) clone() Intents {
	return Intents{Maintenance: i.Maintenance.clone(), Components: i.Components.clone()}
}

func (i Intents) renamed(renames Renames) Intents {
	return Intents{
		Maintenance: i.Maintenance.renamed(renames.Maintenance),
		Components:  i.Components.renamed(renames.Components),
	}
}
