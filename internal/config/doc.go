// Package config loads the Connector and Processor configuration files and
// overlays MAMIRC_* environment variables.
//
// Example:
//
//	cfg, err := config.LoadProcessor("/etc/mamirc/processor.yaml")
//	if err != nil {
//	    fmt.Fprintln(os.Stderr, err)
//	    os.Exit(1)
//	}
//	for _, p := range cfg.Profiles {
//	    fmt.Println(p.Name, p.Connect)
//	}
//
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
// A .env file next to the configuration file is loaded first; variables
// already set in the environment win.
package config
