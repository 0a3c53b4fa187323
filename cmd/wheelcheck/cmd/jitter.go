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

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openracing/rt/scheduler"
)

var (
	jitterTicksFlag    int
	jitterPeriodFlag   time.Duration
	jitterRTFlag       bool
	jitterPriorityFlag int
	jitterCPUFlag      int
	jitterAdaptiveFlag bool
	jitterSpinFlag     time.Duration
)

func init() {
	RootCmd.AddCommand(jitterCmd)
	jitterCmd.Flags().IntVarP(&jitterTicksFlag, "ticks", "n", 5000, "number of ticks to run")
	jitterCmd.Flags().DurationVarP(&jitterPeriodFlag, "period", "p", scheduler.PeriodOneKHz, "tick period")
	jitterCmd.Flags().BoolVar(&jitterRTFlag, "rt", false, "apply SCHED_FIFO and mlockall to the ticking thread")
	jitterCmd.Flags().IntVar(&jitterPriorityFlag, "priority", scheduler.DefaultRTSetup().Priority, "SCHED_FIFO priority used with --rt")
	jitterCmd.Flags().IntVar(&jitterCPUFlag, "cpu", -1, "pin the ticking thread to this cpu, negative means no pinning")
	jitterCmd.Flags().BoolVar(&jitterAdaptiveFlag, "adaptive", false, "enable adaptive scheduling")
	jitterCmd.Flags().DurationVar(&jitterSpinFlag, "spin", scheduler.DefaultSpinThreshold, "busy wait this long before every deadline instead of sleeping")
}

type jitterResult struct {
	metrics    *scheduler.JitterMetrics
	violations int
	resyncs    uint64
	adaptive   scheduler.AdaptiveState
	pllStable  bool
	rtApplied  bool
}

// jitterRun ticks s n times and returns the collected jitter
func jitterRun(s *scheduler.Scheduler, n int, progress func(done int)) jitterResult {
	res := jitterResult{}
	for i := 1; i <= n; i++ {
		if _, err := s.WaitForTick(); errors.Is(err, scheduler.ErrTimingViolation) {
			res.violations++
		}
		if progress != nil && i%100 == 0 {
			progress(i)
		}
	}
	res.metrics = s.Metrics().Clone()
	res.resyncs = s.Resyncs()
	res.adaptive = s.AdaptiveScheduling()
	res.pllStable = s.PLLStable()
	res.rtApplied = s.RTSetupApplied()
	return res
}

func printJitter(w io.Writer, r jitterResult) int {
	m := r.metrics
	fmt.Fprintf(w, "ticks: %d, missed: %d, timing violations: %d, resyncs: %d\n", m.TotalTicks, m.MissedTicks, r.violations, r.resyncs)
	fmt.Fprintf(w, "jitter p50: %v, p95: %v, p99: %v, max: %v, rms: %v\n", m.P50(), m.P95(), m.P99(), m.MaxJitter, m.StdDev())
	fmt.Fprintf(w, "pll locked: %v, real-time setup applied: %v\n", r.pllStable, r.rtApplied)
	if r.adaptive.Enabled {
		fmt.Fprintf(w, "adaptive target period: %v (%.0f%% of range)\n", r.adaptive.TargetPeriod, r.adaptive.PeriodFraction()*100)
	}
	if m.MeetsRequirements() {
		fmt.Fprintf(w, "%s p99 jitter <= %v and missed tick rate <= %v\n", okString, scheduler.MaxP99Jitter, scheduler.MaxMissedTickRate)
		return 0
	}
	fmt.Fprintf(w, "%s p99 jitter %v (max %v), missed tick rate %.2e (max %v)\n", failString, m.P99(), scheduler.MaxP99Jitter, m.MissedTickRate(), scheduler.MaxMissedTickRate)
	return 1
}

var jitterCmd = &cobra.Command{
	Use:   "jitter",
	Short: "Measure local scheduling jitter of a real-time loop.",
	Long: `Measure local scheduling jitter of a real-time loop.
Runs the daemon scheduler without a device and reports wake-up jitter percentiles.
Exit code is 1 when the loop does not meet the timing requirements.
`,
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		if jitterTicksFlag <= 0 {
			log.Fatal("ticks must be positive")
		}

		runtime.LockOSThread()
		if jitterSpinFlag < 0 || jitterSpinFlag >= jitterPeriodFlag {
			log.Fatal("spin must be within [0, period)")
		}
		s := scheduler.New(jitterPeriodFlag, scheduler.WithSpinThreshold(jitterSpinFlag))
		if jitterAdaptiveFlag {
			s.SetAdaptiveScheduling(scheduler.EnabledAdaptiveConfig())
		}
		if jitterRTFlag || jitterCPUFlag >= 0 {
			setup := scheduler.RTSetup{
				HighPriority: jitterRTFlag,
				Priority:     jitterPriorityFlag,
				LockMemory:   jitterRTFlag,
				CPU:          jitterCPUFlag,
			}
			if err := s.ApplyRTSetup(setup); err != nil {
				log.Fatal(err)
			}
		}
		res := jitterRun(s, jitterTicksFlag, func(done int) {
			progressLine("%d/%d ticks", done, jitterTicksFlag)
		})
		progressLine("\n")
		os.Exit(printJitter(os.Stdout, res))
	},
}
