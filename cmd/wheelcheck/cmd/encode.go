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
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openracing/rt/report"
	"github.com/openracing/rt/rtstream"
)

var (
	encodeSeqFlag   uint16
	encodeFlagsFlag uint8
	encodeMaxFlag   float64
)

func init() {
	RootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().Uint16VarP(&encodeSeqFlag, "seq", "s", 0, "sequence number")
	encodeCmd.Flags().Uint8VarP(&encodeFlagsFlag, "flags", "f", 0, "report flags")
	encodeCmd.Flags().Float64VarP(&encodeMaxFlag, "max", "m", 20, "device max torque in Nm")
}

func encodeRun(w io.Writer, nm float64, seq uint16, flags uint8, maxNm float64) error {
	if maxNm <= 0 {
		return fmt.Errorf("max torque must be positive")
	}
	e := report.NewOWP1Encoder(maxNm)
	requested := report.TorqueFromNm(nm)
	torque := rtstream.ClampTorque(requested, e.ClampMin(), e.ClampMax(), report.TorqueMax)

	var buf [report.MaxReportSize]byte
	n := e.Encode(torque, seq, flags, &buf)
	fmt.Fprintf(w, "requested: %v, sent: %v (raw %d), seq: %d, flags: 0x%02x\n", requested, torque, int16(torque), seq, flags)
	fmt.Fprintf(w, "%s\n", hex.EncodeToString(buf[:n]))
	return nil
}

var encodeCmd = &cobra.Command{
	Use:   "encode <torque Nm>",
	Short: "Print the device report for a torque command.",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureVerbosity()
		nm, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			log.Fatalf("parsing torque %q: %v", args[0], err)
		}
		if err := encodeRun(os.Stdout, nm, encodeSeqFlag, encodeFlagsFlag, encodeMaxFlag); err != nil {
			log.Fatal(err)
		}
	},
}
