// Package config loads deployment settings from the environment and the stage
// graph from a YAML or JSON file.
//
// Every stage of a pipeline is usually deployed as its own function with its own
// environment, so a single graph file is shared while bucket_names and next_stage
// may still be overridden per deployment for the stage named by "stage".
package config
