package service

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/practiceserver/internal/apierror"
	"github.com/atinyakov/practiceserver/internal/models"
)

// ThrottleFlag is the toggle read by the throttle middleware.
const ThrottleFlag = "throttle"

// Toggles holds the runtime switches set through the util service.
type Toggles struct {
	mu    sync.RWMutex
	flags map[string]any
	log   *zap.Logger
}

// NewToggles creates the toggle set with the throttle flag initialised.
func NewToggles(throttle bool, log *zap.Logger) *Toggles {
	if log == nil {
		log = zap.NewNop()
	}
	return &Toggles{flags: map[string]any{ThrottleFlag: throttle}, log: log}
}

// Get returns a flag value, nil when unset.
func (t *Toggles) Get(name string) any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return models.DeepCopy(t.flags[name])
}

// Enabled reports whether a flag is truthy.
func (t *Toggles) Enabled(name string) bool {
	return models.Truthy(t.Get(name))
}

// Set updates flags from a JSON object body and returns an empty string.
func (t *Toggles) Set(ctx context.Context, body any) (any, error) {
	values, ok := models.AsRecord(body)
	if !ok {
		return nil, apierror.Request("Expected a JSON object")
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		v := values[k]
		state := "disabled"
		if models.Truthy(v) {
			state = "enabled"
		}
		t.log.Info("toggle "+state, zap.String("flag", k))
		t.flags[k] = models.DeepCopy(v)
	}
	return "", nil
}
