package upload

import (
	"fmt"

	"fhirsync/internal/fhir"
	"fhirsync/internal/resource"
)

// Unit is what one transport call carries: a single request, or a
// transaction bundle when Bundle is set.
type Unit struct {
	Bundle   bool
	Requests []Request
}

// Plan is the generated upload. Squashed holds changes that cancel out (a
// resource inserted and deleted before it was ever uploaded); they need no
// request but are consolidated as uploaded.
type Plan struct {
	Units    []Unit
	Squashed []fhir.LocalChange
}

// Generate squashes the changes of each resource into at most one request
// and groups the requests into units.
func Generate(mode Mode, changes []fhir.LocalChange) (Plan, error) {
	var plan Plan
	var requests []Request
	for _, group := range groupByResource(changes) {
		req, ok, err := squash(mode, group)
		if err != nil {
			return Plan{}, err
		}
		if !ok {
			plan.Squashed = append(plan.Squashed, group...)
			continue
		}
		requests = append(requests, req)
	}

	if !mode.Bundle {
		for _, req := range requests {
			plan.Units = append(plan.Units, Unit{Requests: []Request{req}})
		}
		return plan, nil
	}

	size := mode.BundleSize
	if size <= 0 {
		size = DefaultBundleSize
	}
	for start := 0; start < len(requests); start += size {
		end := min(start+size, len(requests))
		plan.Units = append(plan.Units, Unit{Bundle: true, Requests: requests[start:end]})
	}
	return plan, nil
}

// groupByResource splits changes per surrogate id, keeping the order of
// first appearance and the change order within each group.
func groupByResource(changes []fhir.LocalChange) [][]fhir.LocalChange {
	var order []string
	groups := make(map[string][]fhir.LocalChange)
	for _, c := range changes {
		if _, ok := groups[c.ResourceUUID]; !ok {
			order = append(order, c.ResourceUUID)
		}
		groups[c.ResourceUUID] = append(groups[c.ResourceUUID], c)
	}

	out := make([][]fhir.LocalChange, len(order))
	for i, uuid := range order {
		out[i] = groups[uuid]
	}
	return out
}

func squash(mode Mode, changes []fhir.LocalChange) (Request, bool, error) {
	first, last := changes[0], changes[len(changes)-1]
	if first.Type == fhir.ChangeInsert && last.Type == fhir.ChangeDelete {
		return Request{}, false, nil
	}

	url := resource.ReferenceTo(last.ResourceType, last.ResourceID)
	if last.Type == fhir.ChangeDelete {
		return Request{Method: MethodDelete, URL: url, Changes: changes}, true, nil
	}

	r, err := resource.Parse(last.Payload)
	if err != nil {
		return Request{}, false, fmt.Errorf("decoding change payload for %s: %w", url, err)
	}

	req := Request{Method: MethodPut, URL: url, Resource: r, Changes: changes}
	if first.Type == fhir.ChangeInsert && mode.CreateVerb == MethodPost {
		req.Method = MethodPost
		req.URL = last.ResourceType
	}
	return req, true, nil
}
