/*
Package resilience provides the rate circuit breaker that protects consumers
from runaway terminal producers.

# Overview

A terminal session can emit output far faster than any consumer can render it.
The breaker watches periodic rate samples and opens when a sample crosses the
trip rate. While open, the owner pauses the producer and discards its output.

# Features

- Two-state circuit breaker (Closed, Open)
- Immediate trip on a single sample above the trip rate
- Resume only after the rate has stayed at or below the resume rate for a
  sustained window (level plus duration)
- State change callbacks for notifications and metrics
- Thread-safe operations

# Usage

	breaker := resilience.New("term-1", resilience.Settings{
		TripRate: 5_000_000,
		Sustain:  2 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Printf("breaker %s: %s -> %s", name, from, to)
		},
	})

	// Once per sampling interval
	state := breaker.Observe(bytesPerSecond, time.Now())

# Pattern

	Closed --[rate > trip]--> Open --[rate <= resume for sustain]--> Closed
	                           |  ^
	                           +--+ [rate > resume] restarts the calm window
*/
package resilience
