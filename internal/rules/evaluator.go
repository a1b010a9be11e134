package rules

import (
	"github.com/atinyakov/practiceserver/internal/apierror"
	"github.com/atinyakov/practiceserver/internal/models"
)

// Lookup reads records for the get() expression function.
type Lookup interface {
	Get(collection, id string) (models.Record, error)
}

// Principal is the caller of a request.
type Principal struct {
	// User is the authenticated user, nil for anonymous requests.
	User models.Record
	// Admin is set by the admin override header. It bypasses the top-level
	// gate but not property rules.
	Admin bool
}

// Evaluator checks requests against a rule set.
type Evaluator struct {
	rules  *Set
	lookup Lookup
}

// NewEvaluator creates an evaluator. lookup backs get() and may be nil.
func NewEvaluator(set *Set, lookup Lookup) *Evaluator {
	if set == nil {
		set = Defaults()
	}
	return &Evaluator{rules: set, lookup: lookup}
}

func (e *Evaluator) env(p Principal, data, newData models.Record) Env {
	env := Env{User: p.User, Data: data, NewData: newData}
	if e.lookup != nil {
		env.Get = func(collection, id string) (models.Record, bool) {
			rec, err := e.lookup.Get(collection, id)
			return rec, err == nil
		}
	}
	return env
}

// Check authorizes action on collection. data is the existing record (nil
// for create), newData the incoming payload (nil for read and delete).
// Property rules that fail remove the property from data on read and from
// newData on create and update.
func (e *Evaluator) Check(p Principal, action Action, collection string, data, newData models.Record) error {
	res := e.rules.Resolve(action, collection, data.ID())
	if err := e.gate(p, res.Gate, data, newData); err != nil {
		return err
	}
	e.redact(p, action, res.Properties, data, newData)
	return nil
}

// CheckList authorizes a read of several records. The gate is evaluated once
// without a record, property rules are applied to each element.
func (e *Evaluator) CheckList(p Principal, action Action, collection string, records []models.Record) error {
	res := e.rules.Resolve(action, collection, "")
	if err := e.gate(p, res.Gate, nil, nil); err != nil {
		return err
	}
	for _, rec := range records {
		e.redact(p, action, res.Properties, rec, nil)
	}
	return nil
}

func (e *Evaluator) gate(p Principal, rule Rule, data, newData models.Record) error {
	ok, err := e.eval(p, rule, data, newData, true)
	if err != nil {
		return err
	}
	if !ok && !p.Admin {
		return apierror.Credential()
	}
	return nil
}

func (e *Evaluator) redact(p Principal, action Action, props []PropertyRule, data, newData models.Record) {
	for _, pr := range props {
		ok, _ := e.eval(p, pr.Rule, data, newData, false)
		if ok {
			continue
		}
		switch action {
		case ActionCreate, ActionUpdate:
			delete(newData, pr.Property)
		case ActionRead:
			delete(data, pr.Property)
		}
	}
}

// eval resolves a rule. With strict set, a role list evaluated without a
// user and without admin override fails with an authorization error.
func (e *Evaluator) eval(p Principal, rule Rule, data, newData models.Record, strict bool) (bool, error) {
	switch rule.kind {
	case kindBool:
		return rule.allow, nil
	case kindExpr:
		return rule.expr.Eval(e.env(p, data, newData)), nil
	case kindRoles:
		return e.checkRoles(p, rule.roles, data, newData, strict)
	}
	return true, nil
}

func (e *Evaluator) checkRoles(p Principal, roles []string, data, newData models.Record, strict bool) (bool, error) {
	if hasRole(roles, RoleGuest) {
		return true, nil
	}
	if p.User == nil {
		if strict && !p.Admin {
			return false, apierror.Authorization()
		}
		return false, nil
	}
	if hasRole(roles, RoleUser) {
		return true, nil
	}
	if hasRole(roles, RoleOwner) {
		owner := data
		if owner == nil {
			owner = newData
		}
		id := p.User.ID()
		return id != "" && id == owner.OwnerID(), nil
	}
	return false, nil
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
