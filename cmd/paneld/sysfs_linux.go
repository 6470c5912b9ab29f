//go:build linux

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

const sysfsVerifyTimeout = 2 * time.Second

// sysfsExport makes sure probe exists, writing n to exportFile if it does
// not. udev fixes up group permissions on freshly exported files some time
// after the export, so wait for probe to become writable.
func sysfsExport(probe, exportFile string, n int) error {
	if err := unix.Access(probe, unix.W_OK|unix.R_OK); err == nil {
		return nil
	}
	if err := sysfsWrite(exportFile, strconv.Itoa(n)); err != nil {
		return fmt.Errorf("export %d: %w", n, err)
	}
	return sysfsVerify(probe)
}

func sysfsUnexport(unexportFile string, n int) error {
	return sysfsWrite(unexportFile, strconv.Itoa(n))
}

// sysfsWrite writes s to an attribute file.
func sysfsWrite(fname, s string) error {
	f, err := os.OpenFile(fname, os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte(s))
	return err
}

// sysfsVerify waits for a file to become writable.
func sysfsVerify(f string) error {
	sl := time.Millisecond
	for tout := time.Duration(0); tout < sysfsVerifyTimeout; tout += sl {
		if err := unix.Access(f, unix.W_OK); err == nil {
			return nil
		}
		time.Sleep(sl)
	}
	return fmt.Errorf("%s: not writable", f)
}

// monotonicMicros reads CLOCK_MONOTONIC in microseconds, the same clock
// the GPIO character device stamps its events with.
func monotonicMicros() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return uint64(time.Now().UnixMicro())
	}
	return uint64(ts.Nano() / int64(time.Microsecond))
}
