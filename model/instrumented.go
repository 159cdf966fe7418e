package model

import (
	"context"
	"time"
)

// Observer receives one observation per Generate call. status is "success"
// or "error".
type Observer interface {
	ObserveModelCall(info Info, status string, d time.Duration, usage *TokenUsage)
}

// Instrument wraps m so every Generate call is reported to obs.
func Instrument(m Model, obs Observer) Model {
	if obs == nil {
		return m
	}
	return &instrumented{Model: m, obs: obs}
}

type instrumented struct {
	Model
	obs Observer
}

func (i *instrumented) Generate(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	resp, err := i.Model.Generate(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
	}
	i.obs.ObserveModelCall(i.Info(), status, time.Since(start), resp.Usage)

	return resp, err
}
