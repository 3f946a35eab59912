package domain

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"

	configKit "github.com/gookit/config/v2"
	"github.com/gookit/config/v2/yaml"
	"github.com/imdario/mergo"
	"github.com/mitchellh/mapstructure"
)

const (
	OptionName = "name"
	OptionDesc = "description"
)

// Configuration encapsulates the options shared by the reconstruction CLI and
// the dashboard backend. Fields are registered as command-line flags via
// their 'name'/'description' struct tags; an optional YAML file is merged
// over the flag values.
type Configuration struct {
	YAML string `name:"yaml" description:"Path to config file in the yml format."`

	LogDir    string `name:"log-dir" yaml:"log-dir" description:"Directory containing the per-process profiling logs emitted by the native profiler."`
	LogSuffix string `name:"log-suffix" yaml:"log-suffix" description:"Filename suffix identifying profiling logs within the log directory."`

	InterestSpecFile string `name:"interest-spec" yaml:"interest-spec" description:"Path to a .YAML file declaring the layers and event occurrences of interest. Defaults to the built-in DLRM table when omitted."`

	Output        string `name:"o" yaml:"output" description:"Path to output the reconstructed timelines as JSON. '-' writes to STDOUT."`
	CSVOutput     string `name:"csv-output" yaml:"csv-output" description:"Path to output the flat per-event report as CSV."`
	LayerView     bool   `name:"layer-view" yaml:"layer-view" description:"Emit the layer-first derived view instead of the canonical device-first grouping."`
	OutlierStdDev float64 `name:"outlier-std-devs" yaml:"outlier-std-devs" description:"Reject samples farther than this many standard deviations from the sample mean before averaging. 0 disables rejection."`

	InterestFileOutput string `name:"interest-output" yaml:"interest-output" description:"Path to emit the flattened interest file consumed by the native instrumentation layer."`
	ScheduleOutput     string `name:"schedule-output" yaml:"schedule-output" description:"Path to emit a profiling schedule file."`
	ScheduleRepeat     int    `name:"schedule-repeat" yaml:"schedule-repeat" description:"How many iterations each scheduled event is measured for."`
	WarmupIterations   int    `name:"warmup-iterations" yaml:"warmup-iterations" description:"Number of warmup iterations before the profiler starts measuring."`

	ServerPort              int    `name:"server-port" yaml:"server-port" description:"Port of the dashboard backend server."`
	AdminUser               string `name:"admin_username" yaml:"admin_username" description:"Username of the dashboard admin user."`
	AdminPassword           string `name:"admin_password" yaml:"admin_password" description:"Password of the dashboard admin user."`
	TokenValidDurationSec   int    `name:"token_valid_duration_sec" yaml:"token_valid_duration_sec" description:"How long issued JWT tokens remain valid, in seconds."`
	TokenRefreshIntervalSec int    `name:"token_refresh_interval_sec" yaml:"token_refresh_interval_sec" description:"How long an issued JWT token may still be refreshed after expiring, in seconds."`
	BaseUrl                 string `name:"base-url" yaml:"base-url" description:"Base path the backend listens on, for deployments behind a reverse proxy."`
	ExpectedOriginPort      int    `name:"expected-origin-port" yaml:"expected-origin-port" description:"Port of the expected origin for websocket connections from the frontend."`
	ExpectedOriginAddresses string `name:"expected_websocket_origins" yaml:"expected_websocket_origins" description:"Comma-separated list of addresses (without ports) accepted as websocket connection origins."`

	Debug   bool `name:"debug" description:"Display debug logs."`
	Verbose bool `name:"v" description:"Display verbose logs."`
}

func GetDefaultConfig() *Configuration {
	return &Configuration{
		LogSuffix:               ".prof.json",
		Output:                  "-",
		ScheduleRepeat:          50,
		WarmupIterations:        10,
		ServerPort:              8000,
		TokenValidDurationSec:   3600,
		TokenRefreshIntervalSec: 5400,
		BaseUrl:                 "/",
		ExpectedOriginPort:      9001,
		ExpectedOriginAddresses: "localhost,127.0.0.1",
	}
}

func (opts *Configuration) String() string {
	out, err := json.MarshalIndent(opts, "", "  ")
	if err != nil {
		panic(err)
	}

	return string(out)
}

// CheckUsage registers every tagged field as a flag, parses the command line,
// and merges in the YAML config file when one was given.
func (opts *Configuration) CheckUsage() {
	var printInfo bool
	flag.BoolVar(&printInfo, "h", false, "help info?")

	oType := reflect.TypeOf(opts).Elem()
	oVal := reflect.ValueOf(opts).Elem()
	numField := oType.NumField()
	for i := 0; i < numField; i++ {
		field := oType.Field(i)
		if field.PkgPath != "" {
			continue
		}

		name := field.Tag.Get(OptionName)
		if name == "" {
			continue
		}
		desc := field.Tag.Get(OptionDesc)
		opt := oVal.Field(i)
		switch field.Type.Kind() {
		case reflect.Bool:
			flag.BoolVar(opt.Addr().Interface().(*bool), name, opt.Bool(), desc)
		case reflect.Int:
			flag.IntVar(opt.Addr().Interface().(*int), name, int(opt.Int()), desc)
		case reflect.Int64:
			flag.Int64Var(opt.Addr().Interface().(*int64), name, opt.Int(), desc)
		case reflect.Float64:
			flag.Float64Var(opt.Addr().Interface().(*float64), name, opt.Float(), desc)
		case reflect.String:
			flag.StringVar(opt.Addr().Interface().(*string), name, opt.String(), desc)
		default:
			panic(fmt.Errorf("unsupported config type: %v", field.Type.Kind()))
		}
	}

	flag.Parse()

	if printInfo {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Available options:\n")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if opts.YAML != "" {
		fmt.Printf("Reading configuration from file: \"%s\"\n", opts.YAML)
		configKit.WithOptions(func(opt *configKit.Options) {
			opt.SetTagName(OptionName)
			// DecoderConfig initialization is due a bug in configKit: no TagName will be applied if DecoderConfig is nil.
			opt.DecoderConfig = &mapstructure.DecoderConfig{}
		})
		configKit.AddDriver(yaml.Driver)
		if err := configKit.LoadFiles(opts.YAML); err != nil {
			panic(err)
		}
		fileOpts := &Configuration{}
		if err := configKit.BindStruct("", fileOpts); err != nil {
			panic(err)
		}

		if err := mergo.Merge(opts, fileOpts, mergo.WithOverride); err != nil {
			panic(err)
		}
	}
}
