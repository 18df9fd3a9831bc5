// capice2vcf: convert CAPICE variant predictions to block-compressed VCF.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/capice2vcf/blob/master/LICENSE.txt>.

package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/exascience/capice2vcf/extsort"
	"github.com/exascience/capice2vcf/internal"
	"github.com/exascience/capice2vcf/utils"
)

// ProgramMessage is the first line printed when the capice2vcf binary
// is called.
var ProgramMessage string

func init() {
	ProgramMessage = fmt.Sprint(
		"\n", utils.ProgramName, " version ", utils.ProgramVersion,
		" compiled with ", runtime.Version(),
		" - see ", utils.ProgramURL, " for more information.\n",
	)
}

// HelpMessage is printed to show the --help flag
const HelpMessage = "Print command details:\n" +
	"[--help]\n"

func getFilename(s, help string) string {
	switch s {
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, help)
		os.Exit(0)
	default:
		if strings.HasPrefix(s, "-") {
			log.Println("Filename(s) in command line missing.")
			fmt.Fprint(os.Stderr, help)
			os.Exit(1)
		}
	}
	return s
}

// getOptionalFilename returns os.Args[index] if it is present and not
// a flag, and def otherwise, together with the index of the first flag.
func getOptionalFilename(index int, def, help string) (string, int) {
	if len(os.Args) <= index || strings.HasPrefix(os.Args[index], "-") {
		return def, index
	}
	return getFilename(os.Args[index], help), index + 1
}

func parseFlags(flags *flag.FlagSet, firstFlag int, help string) {
	if len(os.Args) < firstFlag {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	flags.SetOutput(io.Discard)
	if err := flags.Parse(os.Args[firstFlag:]); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			x = 1
		}
		fmt.Fprint(os.Stderr, help)
		os.Exit(x)
	}
	if flags.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

func logCheckFile(parameter, format string, v ...interface{}) {
	if parameter != "" {
		log.Printf(format+" for command line parameter %v.\n", append(v, parameter)...)
	} else {
		log.Printf(format+".\n", v...)
	}
}

func checkExist(parameter, filename string) bool {
	if len(filename) == 0 {
		logCheckFile(parameter, "Error: Missing filename")
		return false
	}
	if filename[0] == '-' {
		logCheckFile(parameter, "Error: Missing filename before %v", filename)
		return false
	}
	if filename == "/dev/stdin" {
		return true
	}
	if _, err := os.Stat(filename); err == nil {
		return true
	} else if os.IsNotExist(err) {
		logCheckFile(parameter, "Error: File %v does not exist", filename)
		return false
	} else if os.IsPermission(err) {
		logCheckFile(parameter, "Error: No permission to read file %v", filename)
		return false
	} else {
		logCheckFile(parameter, "Error %v when trying to access file %v", err, filename)
		return false
	}
}

// checkCreate verifies that filename can be created. An existing file
// is only accepted if force is true. The file is left untouched; see
// removeExisting.
func checkCreate(parameter, filename string, force bool) bool {
	if len(filename) == 0 {
		logCheckFile(parameter, "Error: Missing filename")
		return false
	}
	if filename[0] == '-' {
		logCheckFile(parameter, "Error: Missing filename before %v", filename)
		return false
	}
	if filename == "/dev/stdout" {
		return true
	}
	if internal.Exists(filename) {
		if !force {
			logCheckFile(parameter, "Error: Output file %v already exists, use --force to overwrite it", filename)
			return false
		}
		return true
	}
	err := os.MkdirAll(filepath.Dir(filename), 0700)
	if err == nil {
		err = os.WriteFile(filename, nil, 0666)
	}
	if err != nil {
		if os.IsPermission(err) {
			logCheckFile(parameter, "Error: No permission to create file %v", filename)
		} else {
			logCheckFile(parameter, "Error %v when trying to create file %v", err, filename)
		}
		return false
	}
	_ = os.Remove(filename)
	return true
}

// removeExisting removes an output file that --force allows to be
// overwritten. Call it only once all sanity checks have passed.
func removeExisting(filename string, force bool) error {
	if !force || filename == "/dev/stdout" {
		return nil
	}
	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w, while removing existing output file %v", err, filename)
	}
	return nil
}

// fullPathname leaves the standard streams alone.
func fullPathname(filename string) (string, error) {
	switch filename {
	case "/dev/stdin", "/dev/stdout":
		return filename, nil
	}
	return internal.FullPathname(filename)
}

func checkTempDir(tmpDir string) bool {
	if tmpDir == "" {
		return true
	}
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		log.Printf("Error %v when trying to create temporary directory %v.\n", err, tmpDir)
		return false
	}
	return true
}

// commonFlags are supported by all conversion commands.
type commonFlags struct {
	force, debug, timed bool
	logPath, profile    string
	nrOfThreads         int
}

func (c *commonFlags) register(flags *flag.FlagSet) {
	flags.BoolVar(&c.force, "force", false, "overwrite existing output files")
	flags.BoolVar(&c.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&c.timed, "timed", false, "measure the runtime")
	flags.StringVar(&c.logPath, "log-path", "", "write log files to the specified directory")
	flags.StringVar(&c.profile, "profile", "", "write a CPU profile with the given file prefix")
	flags.IntVar(&c.nrOfThreads, "nr-of-threads", 0, "number of worker threads")
}

func (c *commonFlags) check() bool {
	if c.nrOfThreads < 0 {
		log.Println("Error: Invalid nr-of-threads: ", c.nrOfThreads)
		return false
	}
	return true
}

func (c *commonFlags) apply() {
	if c.debug {
		log.SetLevel(log.DebugLevel)
	}
	if c.nrOfThreads > 0 {
		runtime.GOMAXPROCS(c.nrOfThreads)
	}
	if c.logPath != "" {
		setLogOutput(c.logPath)
	}
}

func (c *commonFlags) command(command *strings.Builder) {
	if c.force {
		command.WriteString(" --force")
	}
	if c.debug {
		command.WriteString(" --debug")
	}
	if c.timed {
		command.WriteString(" --timed")
	}
	if c.nrOfThreads > 0 {
		fmt.Fprint(command, " --nr-of-threads ", c.nrOfThreads)
	}
	if c.logPath != "" {
		fmt.Fprint(command, " --log-path ", c.logPath)
	}
	if c.profile != "" {
		fmt.Fprint(command, " --profile ", c.profile)
	}
}

// sortFlags configure the external sort.
type sortFlags struct {
	tmpDir, spillCompression string
	batchRows, batchMB       int
	mergeWidth, inFlight     int
	sequential               bool
}

func (s *sortFlags) register(flags *flag.FlagSet) {
	defaults := extsort.DefaultOptions()
	flags.StringVar(&s.tmpDir, "tmp-dir", "", "directory for temporary sort files")
	flags.StringVar(&s.spillCompression, "spill-compression", defaults.Compression.String(), "compression of temporary sort files: none, lz4 or zstd")
	flags.IntVar(&s.batchRows, "batch-rows", defaults.BatchRows, "maximum number of rows sorted in memory at once")
	flags.IntVar(&s.batchMB, "batch-mb", int(defaults.BatchBytes>>20), "maximum size in MB of rows sorted in memory at once")
	flags.IntVar(&s.mergeWidth, "merge-width", defaults.MaxMergeWidth, "maximum number of temporary sort files merged at once")
	flags.IntVar(&s.inFlight, "in-flight", defaults.InFlight, "number of batches sorted in the background")
	flags.BoolVar(&s.sequential, "sequential-sort", false, "sort batches sequentially")
}

func (s *sortFlags) options() (extsort.Options, bool) {
	options := extsort.DefaultOptions()
	compression, err := extsort.ParseCompression(s.spillCompression)
	if err != nil {
		log.Printf("Error: %v.\n", err)
		return options, false
	}
	if s.batchRows <= 0 {
		log.Println("Error: Invalid batch-rows: ", s.batchRows)
		return options, false
	}
	if s.batchMB <= 0 {
		log.Println("Error: Invalid batch-mb: ", s.batchMB)
		return options, false
	}
	if s.mergeWidth < 2 {
		log.Println("Error: Invalid merge-width: ", s.mergeWidth)
		return options, false
	}
	if s.inFlight < 0 {
		log.Println("Error: Invalid in-flight: ", s.inFlight)
		return options, false
	}
	if !checkTempDir(s.tmpDir) {
		return options, false
	}
	options.TempDir = s.tmpDir
	options.Compression = compression
	options.BatchRows = s.batchRows
	options.BatchBytes = int64(s.batchMB) << 20
	options.MaxMergeWidth = s.mergeWidth
	options.InFlight = s.inFlight
	options.Parallel = !s.sequential
	return options, true
}

func (s *sortFlags) command(command *strings.Builder) {
	if s.tmpDir != "" {
		fmt.Fprint(command, " --tmp-dir ", s.tmpDir)
	}
	fmt.Fprint(command, " --spill-compression ", s.spillCompression)
	fmt.Fprint(command, " --batch-rows ", s.batchRows)
	fmt.Fprint(command, " --batch-mb ", s.batchMB)
	fmt.Fprint(command, " --merge-width ", s.mergeWidth)
	fmt.Fprint(command, " --in-flight ", s.inFlight)
	if s.sequential {
		command.WriteString(" --sequential-sort")
	}
}

// SortFlagsHelp lists the flags that configure the external sort.
const SortFlagsHelp = "[--tmp-dir path]\n" +
	"[--spill-compression [none | lz4 | zstd]]\n" +
	"[--batch-rows nr]\n" +
	"[--batch-mb nr]\n" +
	"[--merge-width nr]\n" +
	"[--in-flight nr]\n" +
	"[--sequential-sort]\n"

// CommonFlagsHelp lists the flags supported by all commands.
const CommonFlagsHelp = "[--force]\n" +
	"[--debug]\n" +
	"[--timed]\n" +
	"[--nr-of-threads nr]\n" +
	"[--log-path path]\n" +
	"[--profile file-prefix]\n"

func createLogFilename() string {
	t := time.Now()
	zone, _ := t.Zone()
	return fmt.Sprintf("logs/capice2vcf/capice2vcf-%d-%02d-%02d-%02d-%02d-%02d-%09d-%v.log", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
}

func setLogOutput(path string) {
	fullPath := filepath.Join(path, createLogFilename())
	if err := os.MkdirAll(filepath.Dir(fullPath), 0700); err != nil {
		log.Panic(err)
	}
	f, err := os.Create(fullPath)
	if err != nil {
		log.Panic(err)
	}
	fmt.Fprintln(f, ProgramMessage)

	orgStderr, err := unix.Dup(2)
	if err != nil {
		log.Panic(err)
	}
	ferr := os.NewFile(uintptr(orgStderr), "/dev/stderr")
	if err := unix.Dup2(int(f.Fd()), 2); err != nil {
		log.Panic(err)
	}

	multi := io.MultiWriter(f, ferr)

	log.SetOutput(multi)
	log.Println("Created log file at", fullPath)
	log.Println("Command line:", os.Args)
}

func timedRun(timed bool, profile, msg string, phase int64, f func() error) error {
	if profile != "" {
		filename := profile + strconv.FormatInt(phase, 10) + ".prof"
		file, err := os.Create(filename)
		if err != nil {
			return err
		}
		defer func() {
			_ = file.Close()
		}()
		if err := pprof.StartCPUProfile(file); err != nil {
			log.Panic(err)
		}
		defer pprof.StopCPUProfile()
	}
	if timed {
		log.Println(msg)
		start := time.Now()
		defer func() {
			end := time.Now()
			log.Println("Elapsed time: ", end.Sub(start))
		}()
	}
	return f()
}
