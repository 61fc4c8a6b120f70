package recipes

import "sort"

// StepChange writes an instruction at an order.
type StepChange struct {
	Order       int
	Instruction string
}

// StepPlan is the set of writes that turns a stored step list into a
// requested one.
type StepPlan struct {
	Deletes []int
	Updates []StepChange
	Inserts []StepChange
}

// Empty reports whether the plan touches no rows.
func (p StepPlan) Empty() bool {
	return len(p.Deletes) == 0 && len(p.Updates) == 0 && len(p.Inserts) == 0
}

// Mutations counts the rows the plan writes.
func (p StepPlan) Mutations() int {
	return len(p.Deletes) + len(p.Updates) + len(p.Inserts)
}

// ReconcileSteps aligns existing and requested steps by position. Position i
// of the result always has order i+1. Rows whose stored order does not match
// their position are replaced, so the plan also repairs gaps in the existing
// list. Deletes must be applied before updates and inserts.
//
// This is a positional comparison: moving a step shifts every step after it,
// and each shifted position shows up as an update.
func ReconcileSteps(existing []Step, requested []string) StepPlan {
	current := append([]Step(nil), existing...)
	sort.Slice(current, func(i, j int) bool { return current[i].Order < current[j].Order })

	var plan StepPlan
	for index, instruction := range requested {
		order := index + 1
		if index >= len(current) {
			plan.Inserts = append(plan.Inserts, StepChange{Order: order, Instruction: instruction})
			continue
		}
		stored := current[index]
		if stored.Order != order {
			plan.Deletes = append(plan.Deletes, stored.Order)
			plan.Inserts = append(plan.Inserts, StepChange{Order: order, Instruction: instruction})
			continue
		}
		if stored.Instruction != instruction {
			plan.Updates = append(plan.Updates, StepChange{Order: order, Instruction: instruction})
		}
	}
	for index := len(requested); index < len(current); index++ {
		plan.Deletes = append(plan.Deletes, current[index].Order)
	}
	return plan
}
