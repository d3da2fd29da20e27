/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
turing-discover finds Turing servers on the local network over mDNS.

Usage:

	turing-discover                 # scan for 3 seconds
	turing-discover --timeout 10s   # scan longer
	turing-discover --json          # machine-readable output
	turing-discover --quiet         # addresses only, one per line
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"turing/internal/discovery"
	"turing/internal/protocol"
	"turing/pkg/cli"
)

const version = "1.0.0"

func main() {
	timeout := flag.Duration("timeout", 3*time.Second, "how long to scan")
	jsonOutput := flag.Bool("json", false, "print JSON")
	quiet := flag.Bool("quiet", false, "print addresses only")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.BoolVar(quiet, "q", false, "print addresses only")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("turing-discover %s (protocol %s)\n", version, protocol.Version)
		return
	}
	human := !*quiet && !*jsonOutput

	var servers []*discovery.Server
	scan := func() (err error) {
		servers, err = discovery.Discover(*timeout, protocol.Version)
		return err
	}
	var err error
	if human {
		sp := cli.NewSpinner(scanMessage(*timeout))
		err = sp.Run(func() error {
			stop := countdown(sp, *timeout)
			defer stop()
			return scan()
		})
	} else {
		err = scan()
	}
	if err != nil {
		if !*quiet {
			cli.NewCLIError("Discovery failed").WithDetail(err.Error()).Print()
		}
		os.Exit(1)
	}

	switch {
	case *jsonOutput:
		data, _ := json.MarshalIndent(servers, "", "  ")
		fmt.Println(string(data))
	case *quiet:
		for _, s := range servers {
			fmt.Println(s.Addr)
		}
	default:
		printHuman(servers)
	}
}

func scanMessage(left time.Duration) string {
	return fmt.Sprintf("Scanning for Turing servers (%s left)", left.Round(time.Second))
}

// countdown refreshes the spinner with the remaining scan time.
func countdown(sp *cli.Spinner, total time.Duration) (stop func()) {
	deadline := time.Now().Add(total)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sp.UpdateMessage(scanMessage(max(time.Until(deadline), 0)))
			}
		}
	}()
	return func() { close(done) }
}

func printHuman(servers []*discovery.Server) {
	if len(servers) == 0 {
		cli.PrintWarning("No Turing servers found")
		fmt.Println(cli.Dimmed("  servers advertise only with discovery = true; mDNS needs UDP port 5353"))
		return
	}
	cli.PrintSuccess("Found %d server(s)", len(servers))

	table := cli.NewTable("Host", "Address", "Registration", "Version")
	for _, s := range servers {
		table.AddRow(strings.TrimSuffix(s.Host, "."), s.Addr, s.RegistrationAddr, s.Version)
	}
	table.Print()
}

func usage() {
	h := cli.NewHelpFormatter("turing-discover", version, "find Turing servers on the local network")
	h.AddFlag(cli.Flag{Name: "timeout", Description: "how long to scan", Default: "3s"})
	h.AddFlag(cli.Flag{Name: "json", Description: "print JSON"})
	h.AddFlag(cli.Flag{Name: "quiet, -q", Description: "print addresses only"})
	h.AddFlag(cli.Flag{Name: "version", Description: "print the version and exit"})
	h.PrintUsage()
}
