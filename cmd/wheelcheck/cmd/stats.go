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
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/constraints"

	"github.com/openracing/rt/scheduler"
	"github.com/openracing/rt/stats"
	"github.com/openracing/rt/watchdog"
)

var statsPrefixFlag string

func init() {
	RootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&rootAddressFlag, "address", "a", "http://localhost:4280", rootAddressFlagDesc)
	statsCmd.Flags().StringVarP(&statsPrefixFlag, "prefix", "p", "wheel.", "only print counters with this prefix")
}

type status int

// check results
const (
	OK status = iota
	WARN
	FAIL
)

var statusToColor = []string{okString, warnString, failString}

// diagnoser is function that does checks on the loop report
type diagnoser func(s *stats.Snapshot) (status, string)

func fmtThreshold(warnThreshold any) string {
	return color.BlueString("%v", warnThreshold)
}

// generic function to check value against some thresholds
func checkAgainstThreshold[T constraints.Ordered](name string, value, warnThreshold, failThreshold T, explanation string) (status, string) {
	msgTemplate := "%s is %s, we expect it to be within %s%s"
	thresholdStr := fmtThreshold(warnThreshold)

	if value > failThreshold {
		return FAIL, fmt.Sprintf(msgTemplate, name, color.RedString("%v", value), thresholdStr, ". "+explanation)
	}
	if value > warnThreshold {
		return WARN, fmt.Sprintf(msgTemplate, name, color.YellowString("%v", value), thresholdStr, ". "+explanation)
	}
	return OK, fmt.Sprintf(msgTemplate, name, color.GreenString("%v", value), thresholdStr, "")
}

func checkJitter(s *stats.Snapshot) (status, string) {
	return checkAgainstThreshold(
		"p99 tick jitter",
		time.Duration(s.JitterP99Ns),
		200*time.Microsecond,
		scheduler.MaxP99Jitter,
		"Late ticks are felt as roughness in the wheel",
	)
}

func checkMissedTicks(s *stats.Snapshot) (status, string) {
	return checkAgainstThreshold(
		"missed tick rate",
		s.MissedTickRate,
		scheduler.MaxMissedTickRate/10,
		scheduler.MaxMissedTickRate,
		"The loop arrived after its deadline, check CPU isolation and RT priority",
	)
}

func checkProcessing(s *stats.Snapshot) (status, string) {
	return checkAgainstThreshold(
		"p99 processing time",
		time.Duration(s.ProcessingP99Ns),
		200*time.Microsecond,
		500*time.Microsecond,
		"Writes to the device are slow",
	)
}

func checkWatchdogs(s *stats.Snapshot) (status, string) {
	if len(s.Watchdogs) == 0 {
		return WARN, "no watchdog status reported"
	}
	names := make([]string, 0, len(s.Watchdogs))
	for name := range s.Watchdogs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := s.Watchdogs[name]
		if st != watchdog.Armed.String() {
			return FAIL, fmt.Sprintf("%s watchdog is %s, we expect it to be %s", name, color.RedString(st), watchdog.Armed)
		}
	}
	return OK, fmt.Sprintf("all %d watchdogs are %s", len(names), color.GreenString(watchdog.Armed.String()))
}

func checkRealTime(s *stats.Snapshot) (status, string) {
	if !s.RTSetupApplied {
		return WARN, fmt.Sprintf("loop thread is %s, grant CAP_SYS_NICE and CAP_IPC_LOCK", color.YellowString("not real-time"))
	}
	if !s.PLLStable {
		return WARN, fmt.Sprintf("tick PLL is %s, phase error %v", color.YellowString("unlocked"), time.Duration(s.PLLPhaseErrorNs))
	}
	return OK, fmt.Sprintf("loop thread is %s and the tick PLL is locked", color.GreenString("real-time"))
}

var diagnosers = []diagnoser{
	checkJitter,
	checkMissedTicks,
	checkProcessing,
	checkRealTime,
	checkWatchdogs,
}

func runDiagnosers(w io.Writer, s *stats.Snapshot, toRun []diagnoser) int {
	failed := 0
	for _, check := range toRun {
		status, msg := check(s)
		if status != OK {
			failed++
		}
		fmt.Fprintf(w, "%s %s\n", statusToColor[status], msg)
	}
	return failed
}

func printCounters(w io.Writer, counters stats.Counters, prefix string) {
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"counter", "value"})
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		table.Append([]string{k, fmt.Sprintf("%d", counters[k])})
	}
	table.Render()
}

func statsRun(w io.Writer, address, prefix string) (int, error) {
	counters, err := stats.FetchCounters(address)
	if err != nil {
		return 0, fmt.Errorf("fetching counters: %w", err)
	}
	snap, err := stats.FetchSnapshot(address)
	if err != nil {
		return 0, fmt.Errorf("fetching loop report: %w", err)
	}
	printCounters(w, counters, prefix)
	fmt.Fprintf(w, "ticks: %d, adaptive: %v, target period: %v\n", snap.Ticks, snap.AdaptiveEnabled, time.Duration(snap.TargetPeriodNs))
	return runDiagnosers(w, snap, diagnosers), nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print daemon counters and check the loop timing.",
	Long: `Print daemon counters and check the loop timing.
Exit code will be equal to the number of failed checks.
`,
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()

		failed, err := statsRun(os.Stdout, rootAddressFlag, statsPrefixFlag)
		if err != nil {
			log.Fatal(err)
		}
		os.Exit(failed)
	},
}
