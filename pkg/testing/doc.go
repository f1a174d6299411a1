// Package testing provides test helpers shared across the effects packages.
//
// # Time
//
// Components that stamp records take a clock function. FakeClock makes those
// stamps deterministic:
//
//	clk := efftest.NewFakeClock()
//	ledger.SetClock(clk.Now)
//	clk.Advance(time.Second)
//
// # Import Alias
//
// Since this package has the same name as the standard library testing
// package, import it with an alias:
//
//	import efftest "github.com/go-drift/effects/pkg/testing"
package testing
