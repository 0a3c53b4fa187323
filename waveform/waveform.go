/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package waveform

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/Knetic/govaluate"
	log "github.com/sirupsen/logrus"

	"github.com/openracing/rt/mailbox"
	"github.com/openracing/rt/report"
)

// Help is a help message used by flags in main
const Help = `The producer expression is evaluated with govaluate, please check https://github.com/Knetic/govaluate/blob/master/MANUAL.md
result is the torque in Nm
supported variables:
  t (seconds since the producer started)
  pi
supported functions:
  sin(x), cos(x), abs(x)
  square(x) - sign of sin(x), for example square(2 * pi * t) is a 1Hz square wave
  clamp(x, lo, hi) - x limited to [lo, hi]`

// DefaultExpression is a 1Hz sine of 2Nm amplitude
const DefaultExpression = "2.0 * sin(2 * pi * t)"

// DefaultInterval is the default producer period
const DefaultInterval = 2 * time.Millisecond

var supportedVariables = []string{"t", "pi"}

func isSupportedVar(varName string) bool {
	for _, v := range supportedVariables {
		if v == varName {
			return true
		}
	}
	return false
}

func floatArgs(name string, want int, args []interface{}) ([]float64, error) {
	if len(args) != want {
		return nil, fmt.Errorf("%s: wrong number of arguments: want %d, got %d", name, want, len(args))
	}
	res := make([]float64, want)
	for i, a := range args {
		v, ok := a.(float64)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d is not a number", name, i)
		}
		res[i] = v
	}
	return res, nil
}

func unary(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		v, err := floatArgs(name, 1, args)
		if err != nil {
			return nil, err
		}
		return f(v[0]), nil
	}
}

func square(x float64) float64 {
	s := math.Sin(x)
	switch {
	case s > 0:
		return 1
	case s < 0:
		return -1
	}
	return 0
}

// all the functions we support in expressions
var functions = map[string]govaluate.ExpressionFunction{
	"sin":    unary("sin", math.Sin),
	"cos":    unary("cos", math.Cos),
	"abs":    unary("abs", math.Abs),
	"square": unary("square", square),
	"clamp": func(args ...interface{}) (interface{}, error) {
		v, err := floatArgs("clamp", 3, args)
		if err != nil {
			return nil, err
		}
		return math.Min(math.Max(v[0], v[1]), v[2]), nil
	},
}

func prepareExpression(exprStr string) (*govaluate.EvaluableExpression, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(exprStr, functions)
	if err != nil {
		return nil, err
	}
	for _, v := range expr.Vars() {
		if !isSupportedVar(v) {
			return nil, fmt.Errorf("unsupported variable %q", v)
		}
	}
	return expr, nil
}

// Heartbeat is fed every time the generator publishes a command
type Heartbeat interface {
	Feed() error
}

// Option configures a Generator
type Option func(*Generator)

// WithFlags sets the report flags published with every command
func WithFlags(flags uint8) Option {
	return func(g *Generator) {
		g.flags = flags
	}
}

// WithHeartbeat sets the heartbeat fed on every publish
func WithHeartbeat(h Heartbeat) Option {
	return func(g *Generator) {
		g.beat = h
	}
}

// Generator is a non real-time producer writing a torque test signal to the mailbox
type Generator struct {
	Expression string

	expr      *govaluate.EvaluableExpression
	flags     uint8
	beat      Heartbeat
	stalled   atomic.Bool
	published atomic.Uint64
}

// New compiles expression into a Generator
func New(expression string, opts ...Option) (*Generator, error) {
	expr, err := prepareExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("preparing producer expression %q: %w", expression, err)
	}
	g := &Generator{Expression: expression, expr: expr}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Evaluate returns the torque in Nm at t
func (g *Generator) Evaluate(t time.Duration) (float64, error) {
	params := map[string]interface{}{
		"t":  t.Seconds(),
		"pi": math.Pi,
	}
	res, err := g.expr.Evaluate(params)
	if err != nil {
		return 0, err
	}
	nm, ok := res.(float64)
	if !ok {
		return 0, fmt.Errorf("expression %q returned %T, want a number", g.Expression, res)
	}
	return nm, nil
}

// Torque returns the Q8.8 torque at t
func (g *Generator) Torque(t time.Duration) (report.Torque, error) {
	nm, err := g.Evaluate(t)
	if err != nil {
		return 0, err
	}
	return report.TorqueFromNm(nm), nil
}

// Stall stops publishing, the sequence freezes as if the producer hung
func (g *Generator) Stall() {
	g.stalled.Store(true)
}

// Resume undoes Stall
func (g *Generator) Resume() {
	g.stalled.Store(false)
}

// Stalled reports whether the generator is stalled
func (g *Generator) Stalled() bool {
	return g.stalled.Load()
}

// Published is the number of commands written to the mailbox
func (g *Generator) Published() uint64 {
	return g.published.Load()
}

// Publish writes the command for t to the mailbox, unless stalled
func (g *Generator) Publish(mb *mailbox.TorqueMailbox, t time.Duration) error {
	if g.stalled.Load() {
		return nil
	}
	torque, err := g.Torque(t)
	if err != nil {
		return err
	}
	mb.Publish(torque, g.flags)
	g.published.Add(1)
	if g.beat != nil {
		_ = g.beat.Feed()
	}
	return nil
}

// Run publishes every interval until ctx is cancelled. The mailbox is armed after
// the first command is written and disarmed on exit.
func (g *Generator) Run(ctx context.Context, mb *mailbox.TorqueMailbox, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("producer interval must be positive, got %v", interval)
	}
	start := time.Now()
	if err := g.Publish(mb, 0); err != nil {
		return err
	}
	mb.Arm()
	defer mb.Disarm()
	log.Infof("producer %q running every %v", g.Expression, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Infof("producer stopped after %d commands", g.Published())
			return nil
		case <-ticker.C:
			if err := g.Publish(mb, time.Since(start)); err != nil {
				return fmt.Errorf("producer: %w", err)
			}
		}
	}
}
