// Package health implements the heartbeat scan and composite health
// scoring described by the runtime's process supervisor contract,
// following the ticker-driven sweep in the teacher's
// internal/server/heartbeat.go and the per-agent metric shape in
// internal/metrics/collector.go.
package health

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ResourceSampler supplies CPU/memory/disk figures for a running
// process. The runtime treats it as an external supplier per design:
// the default implementation is a best-effort /proc reader on Linux and
// returns zeros elsewhere, since no third-party resource-sampling
// library appears anywhere in the retrieved example corpus.
type ResourceSampler interface {
	Sample(pid int) (cpuPercent, memPercent, diskPercent float64, err error)
}

// ProcSampler checks that /proc/<pid>/stat exists and reports resident
// memory (VmRSS from /proc/<pid>/status) as a percentage of MemTotal
// from /proc/meminfo. CPU and disk are always reported as 0, and a pid
// with no stat file yields all zeros.
type ProcSampler struct{}

func (ProcSampler) Sample(pid int) (cpuPercent, memPercent, diskPercent float64, err error) {
	statPath := fmt.Sprintf("/proc/%d/stat", pid)
	if _, statErr := os.Stat(statPath); statErr != nil {
		return 0, 0, 0, nil
	}

	memPercent = readVMRSSPercent(pid)
	return 0, memPercent, 0, nil
}

func readVMRSSPercent(pid int) float64 {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0
	}
	defer f.Close()

	var vmRSSKB float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "VmRSS:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				vmRSSKB, _ = strconv.ParseFloat(fields[1], 64)
			}
			break
		}
	}

	total := readMemTotalKB()
	if total == 0 {
		return 0
	}
	return (vmRSSKB / total) * 100
}

func readMemTotalKB() float64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "MemTotal:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				v, _ := strconv.ParseFloat(fields[1], 64)
				return v
			}
		}
	}
	return 0
}
