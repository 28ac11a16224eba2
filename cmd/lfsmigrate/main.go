package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/dustin/go-humanize"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/config"
	"github.com/polydawn/lfsmigrate/metrics"
	"github.com/polydawn/lfsmigrate/migrate"
	"github.com/polydawn/lfsmigrate/pathmatch"
	"github.com/polydawn/lfsmigrate/pointer"
	"github.com/polydawn/lfsmigrate/warehouse/impl/kvhttp"
)

/*
Output serialization formats
*/
const (
	FmtJson = "json"
	FmtDumb = "dumb"
)

type baseCLI struct {
	Format     string // Output api format, eg. json
	ConfigPath string // Optional TOML config file
	MigrateCLI struct {
		Source        string
		Destination   string
		LFSURL        string
		Threads       int
		UploadWorkers int
		Retries       int
		CachePath     string
		MetricsFile   string
		Patterns      []string
	}
	CheckPatternCLI struct {
		Pattern string
		Paths   []string
	}
	PointerCLI struct {
		Path string
	}
}

func configureMigrate(cli *baseCLI, appMigrate *kingpin.CmdClause) {
	appMigrate.Flag("source", "Repository to migrate").
		Required().
		StringVar(&cli.MigrateCLI.Source)
	appMigrate.Flag("destination", "Where to create the migrated repository (removed first if it exists)").
		Required().
		StringVar(&cli.MigrateCLI.Destination)
	appMigrate.Flag("lfs", "Git LFS server URL to upload content to").
		StringVar(&cli.MigrateCLI.LFSURL)
	appMigrate.Flag("threads", "Parallel conversion workers (default: number of CPUs)").
		IntVar(&cli.MigrateCLI.Threads)
	appMigrate.Flag("upload-workers", "Parallel uploads").
		IntVar(&cli.MigrateCLI.UploadWorkers)
	appMigrate.Flag("retries", "Attempts per upload request").
		IntVar(&cli.MigrateCLI.Retries)
	appMigrate.Flag("cache", "Content hash cache file").
		StringVar(&cli.MigrateCLI.CachePath)
	appMigrate.Flag("metrics-file", "Write prometheus metrics to this file when done").
		StringVar(&cli.MigrateCLI.MetricsFile)
	appMigrate.Arg("pattern", "Paths to move into LFS, gitignore style (e.g. '*.bin')").
		StringsVar(&cli.MigrateCLI.Patterns)
}

func configureCheckPattern(cli *baseCLI, appCheck *kingpin.CmdClause) {
	appCheck.Arg("pattern", "Pattern to test").
		Required().
		StringVar(&cli.CheckPatternCLI.Pattern)
	appCheck.Arg("path", "Paths to test against the pattern; a trailing '/' marks a directory").
		Required().
		StringsVar(&cli.CheckPatternCLI.Paths)
}

func configurePointer(cli *baseCLI, appPointer *kingpin.CmdClause) {
	appPointer.Arg("file", "File to inspect ('-' for stdin)").
		Required().
		StringVar(&cli.PointerCLI.Path)
}

/*
Blocks until a sigint is received, then calls cancel.
*/
func CancelOnInterrupt(cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	<-signalChan
	signal.Stop(signalChan)
	cancel()
}

func main() {
	ctx := context.Background()
	exitCode := Main(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(int(exitCode))
}

func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) lfsmigrate.ExitCode {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go CancelOnInterrupt(cancel)

	cli := baseCLI{}

	app := kingpin.New("lfsmigrate", "Rewrite git history to move large files into Git LFS")
	app.HelpFlag.Short('h')

	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	app.Flag("format", "Output api format").
		Default(FmtDumb).
		EnumVar(&cli.Format, FmtJson, FmtDumb)
	app.Flag("config", "TOML config file").
		StringVar(&cli.ConfigPath)

	appMigrate := app.Command("migrate", "convert a repository")
	configureMigrate(&cli, appMigrate)

	appCheck := app.Command("check-pattern", "show which paths a pattern matches")
	configureCheckPattern(&cli, appCheck)

	appPointer := app.Command("pointer", "check whether a file is an LFS pointer")
	configurePointer(&cli, appPointer)

	var termErr error
	app.Terminate(func(status int) {
		termErr = fmt.Errorf("parsing error: %d\n", status)
	})
	cmd, err := app.Parse(args[1:])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return lfsmigrate.ExitUsage
	}
	if termErr != nil {
		fmt.Fprintln(stderr, termErr)
		return lfsmigrate.ExitUsage
	}
	switch cmd {
	case appMigrate.FullCommand():
		result, err := executeMigrate(ctx, cli, stdout, stderr)
		SerializeResult(cli.Format, result, err, stdout, stderr)
		return lfsmigrate.ExitCodeFor(err)
	case appCheck.FullCommand():
		err := executeCheckPattern(cli, stdout)
		if err != nil {
			fmt.Fprintln(stderr, err)
		}
		return lfsmigrate.ExitCodeFor(err)
	case appPointer.FullCommand():
		err := executePointer(cli, stdin, stdout)
		if err != nil {
			fmt.Fprintln(stderr, err)
		}
		return lfsmigrate.ExitCodeFor(err)
	}
	return lfsmigrate.ExitUsage
}

/*
Merges flags over the config file over defaults.
*/
func migrateOptions(cli baseCLI) (migrate.Options, error) {
	var file config.File
	if cli.ConfigPath != "" {
		var err error
		file, err = config.Load(cli.ConfigPath)
		if err != nil {
			return migrate.Options{}, err
		}
	}
	m := cli.MigrateCLI
	if len(m.Patterns) > 0 {
		file.Patterns = m.Patterns
	}
	if m.Threads > 0 {
		file.Threads = m.Threads
	}
	if m.CachePath != "" {
		file.Cache = m.CachePath
	}
	if m.LFSURL != "" {
		file.LFS.URL = m.LFSURL
	}
	if m.Retries > 0 {
		file.LFS.Retries = m.Retries
	}
	if m.UploadWorkers > 0 {
		file.LFS.Workers = m.UploadWorkers
	}
	file.Defaults()
	if len(file.Patterns) == 0 {
		return migrate.Options{}, Errorf(lfsmigrate.ErrUsage, "no patterns given; nothing would be moved to LFS")
	}
	return migrate.Options{
		Source:        m.Source,
		Destination:   m.Destination,
		Patterns:      file.Patterns,
		Threads:       file.Threads,
		CachePath:     file.Cache,
		LFSURL:        file.LFS.URL,
		LFS:           kvhttp.Options{Token: file.LFS.Token, Retries: file.LFS.Retries},
		S3:            file.S3,
		UploadWorkers: file.LFS.Workers,
		MetricsFile:   m.MetricsFile,
	}, nil
}

func executeMigrate(ctx context.Context, cli baseCLI, stdout, stderr io.Writer) (migrate.Result, error) {
	opts, err := migrateOptions(cli)
	if err != nil {
		return migrate.Result{}, err
	}
	events := make(chan lfsmigrate.Event, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for evt := range events {
			SerializeEvent(cli.Format, evt, stdout, stderr)
		}
	}()
	opts.Monitor = lfsmigrate.Monitor{Chan: events}
	opts.Metrics = metrics.New()
	result, err := migrate.Run(ctx, opts)
	close(events)
	wg.Wait()
	return result, err
}

func executeCheckPattern(cli baseCLI, stdout io.Writer) error {
	m, err := pathmatch.NewMatcher([]string{cli.CheckPatternCLI.Pattern}, true)
	if err != nil {
		return err
	}
	for _, path := range cli.CheckPatternCLI.Paths {
		verdict := "-"
		if m.Match(path) {
			verdict = "match"
		}
		fmt.Fprintf(stdout, "%s\t%s\n", verdict, path)
	}
	return nil
}

func executePointer(cli baseCLI, stdin io.Reader, stdout io.Writer) error {
	var r io.Reader = stdin
	if cli.PointerCLI.Path != "-" {
		f, err := os.Open(cli.PointerCLI.Path)
		if err != nil {
			return Errorf(lfsmigrate.ErrUsage, "cannot open file: %s", err)
		}
		defer f.Close()
		r = f
	}
	// Anything longer can't be a pointer; read one byte past to tell.
	head, err := io.ReadAll(io.LimitReader(r, pointer.MaxSize+1))
	if err != nil {
		return Errorf(lfsmigrate.ErrLocalIO, "cannot read file: %s", err)
	}
	ptr, ok := pointer.Parse(head)
	if len(head) > pointer.MaxSize || !ok {
		fmt.Fprintln(stdout, "not a pointer")
		return nil
	}
	fmt.Fprintf(stdout, "pointer: sha256 %s, %s\n", ptr.Oid(), humanize.IBytes(uint64(ptr.Size())))
	return nil
}
