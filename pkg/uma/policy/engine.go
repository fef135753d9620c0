// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
	"github.com/JanssenProject/jans-authcore/pkg/logger"
)

// Script is one authorization policy. Authorize returns whether the policy
// allows the requested scopes; an error means the policy could not decide and
// the evaluation fails closed.
type Script interface {
	Name() string
	Authorize(ctx context.Context, actx *Context) (bool, error)
}

// Registry resolves policy scripts by distinguished name.
type Registry interface {
	Resolve(dn string) (Script, error)
}

// StaticRegistry is an in-memory Registry.
type StaticRegistry struct {
	mu      sync.RWMutex
	scripts map[string]Script
}

// NewStaticRegistry constructs an empty StaticRegistry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{scripts: make(map[string]Script)}
}

// Register binds a script to a distinguished name, replacing any previous
// binding.
func (r *StaticRegistry) Register(dn string, script Script) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[dn] = script
}

// Resolve returns the script bound to the distinguished name.
func (r *StaticRegistry) Resolve(dn string) (Script, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	script, ok := r.scripts[dn]
	if !ok {
		return nil, fmt.Errorf("no policy registered under %q", dn)
	}
	return script, nil
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	// Allowed is true only when every evaluated policy allowed the request.
	Allowed bool

	// NeedInfo carries the claims-gathering payload attached by a denying
	// policy, if any.
	NeedInfo *NeedInfo
}

// Engine evaluates a list of policies against an evaluation context.
type Engine struct {
	registry Registry
	log      *slog.Logger
}

// NewEngine constructs an Engine over the given registry.
func NewEngine(registry Registry) *Engine {
	return &Engine{
		registry: registry,
		log:      logger.Get(),
	}
}

// Authorize evaluates the named policies in order. All must allow; the first
// denial short-circuits the evaluation and later policies do not run. An
// empty policy list allows vacuously. An unresolvable policy or a script
// error denies and reports the failure.
func (e *Engine) Authorize(ctx context.Context, actx *Context, policyDNs []string) (Decision, error) {
	for _, dn := range policyDNs {
		script, err := e.registry.Resolve(dn)
		if err != nil {
			return Decision{}, errors.NewInternal(
				fmt.Sprintf("cannot resolve policy %q", dn), err)
		}

		actx.scriptDN = dn
		allowed, err := script.Authorize(ctx, actx)
		if err != nil {
			e.log.Warn("policy evaluation failed",
				"policy", dn,
				"script", script.Name(),
				"error", err)
			return Decision{}, errors.NewForbidden(
				fmt.Sprintf("policy %q could not decide", script.Name()), err)
		}
		if !allowed {
			e.log.Debug("policy denied request", "policy", dn, "script", script.Name())
			return Decision{NeedInfo: actx.NeedInfo()}, nil
		}
	}
	return Decision{Allowed: true}, nil
}
