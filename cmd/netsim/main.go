// Command netsim runs one of the built-in topology scenarios
// (topo/scenarios.go) to a fixed simulated end time and prints the
// resulting per-flow delivery counts. It exists only to exercise the
// topology/connection wiring end to end; building a general scenario
// configuration loader or CLI is out of scope.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/iti/tcpnet/engine"
	"github.com/iti/tcpnet/mptcp"
	"github.com/iti/tcpnet/topo"
)

func main() {
	scenario := flag.String("scenario", "dumbbell", "scenario to run: dumbbell, fairness, mptcp-uncoupled, mptcp-coupled, incast")
	seconds := flag.Float64("seconds", 5, "simulated seconds to run")
	flag.Parse()

	end := engine.FromSeconds(*seconds)

	switch *scenario {
	case "dumbbell":
		sc, err := topo.BuildDumbbellScenario(10e9, 100e-6, 100)
		must(err)
		sc.EventList.RunUntil(end)
		fmt.Printf("dumbbell: delivered=%d bytes\n", sc.Flow.Sink.CumulativeAck())

	case "fairness":
		sc, err := topo.BuildTwoFlowFairnessScenario(10e9, 100e-6, 100)
		must(err)
		sc.EventList.RunUntil(end)
		var throughputs []float64
		for i, f := range sc.Flows {
			ack := f.Sink.CumulativeAck()
			fmt.Printf("fairness: flow %d delivered=%d bytes\n", i, ack)
			throughputs = append(throughputs, float64(ack))
		}
		fmt.Printf("fairness: jain index=%.4f\n", topo.JainFairnessIndex(throughputs))

	case "mptcp-uncoupled":
		runMPTCP(mptcp.Uncoupled, end)
	case "mptcp-coupled":
		runMPTCP(mptcp.FullyCoupled, end)

	case "incast":
		sc, err := topo.BuildIncastScenario(15, 100_000, 10e9, 100)
		must(err)
		sc.EventList.RunUntil(end)
		completed := 0
		for _, f := range sc.Flows {
			if f.Sink.CumulativeAck() >= 100_000 {
				completed++
			}
		}
		fmt.Printf("incast: %d/%d senders completed their transfer\n", completed, len(sc.Flows))
		if stats, ok := sc.Builder.QueueStats("bottleneck-fwd"); ok {
			fmt.Printf("incast: bottleneck drops=%d\n", stats.Dropped)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n", *scenario)
		os.Exit(1)
	}
}

func runMPTCP(algo mptcp.Algo, end engine.Time) {
	sc, err := topo.BuildTwoPathMPTCPScenario(algo)
	must(err)
	sc.EventList.RunUntil(end)
	for i, sf := range sc.Flow.Subflows {
		fmt.Printf("mptcp: subflow %d delivered=%d bytes\n", i, sf.Sink.CumulativeAck())
	}
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
