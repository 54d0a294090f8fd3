package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ParseArguments converts command-line arguments into a map of flags and
// values. The first bare word among the arguments is the command.
func ParseArguments(argv []string) map[string]string {
	args := make(map[string]string)

	commandIndex := -1
	for i := 1; i < len(argv); i++ {
		if argv[i] == "extract" || argv[i] == "stats" {
			args["command"] = argv[i]
			commandIndex = i
			break
		}
	}

	for i := 1; i < len(argv); i++ {
		if i == commandIndex {
			continue
		}
		arg := argv[i]

		// --key=value form
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			args[strings.TrimPrefix(parts[0], "--")] = parts[1]
			continue
		}

		// --key value and boolean --key forms
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")
			if i+1 >= len(argv) || strings.HasPrefix(argv[i+1], "--") || i+1 == commandIndex {
				args[flagName] = "true"
			} else {
				args[flagName] = argv[i+1]
				i++
			}
		}
	}

	return args
}

// GetDefaultCatalogPath returns the default path for the catalog database,
// next to the executable when possible.
func GetDefaultCatalogPath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "framesift.db"
	}
	return filepath.Join(filepath.Dir(exePath), "framesift.db")
}

// ParseThreshold parses and validates a threshold value in [0,1].
func ParseThreshold(thresholdStr string) (float64, error) {
	parsed, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return 0, fmt.Errorf("invalid threshold value %q, expected a number in [0,1]", thresholdStr)
	}
	return parsed, nil
}

// ParsePositiveInt parses an integer flag that must be >= min.
func ParsePositiveInt(s string, min int) (int, error) {
	parsed, err := strconv.Atoi(s)
	if err != nil || parsed < min {
		return 0, fmt.Errorf("invalid value %q, expected an integer >= %d", s, min)
	}
	return parsed, nil
}

// PrintUsage outputs the command-line usage instructions.
func PrintUsage() {
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s extract --video=PATH --out=DIR [options]\n", os.Args[0])
	fmt.Printf("  %s stats [--catalog=PATH]\n", os.Args[0])
	fmt.Printf("\nOptions:\n")
	fmt.Printf("  --video            : Path to video file to process\n")
	fmt.Printf("  --out              : Output directory for extracted frames\n")
	fmt.Printf("  --catalog          : Path to catalog database (default: %s)\n", GetDefaultCatalogPath())
	fmt.Printf("  --threshold        : Scene change threshold, 0.0-1.0 (default: 0.3)\n")
	fmt.Printf("  --min-interval     : Minimum raw frames between scene changes (default: 30)\n")
	fmt.Printf("  --skip             : Process every Nth decoded frame (default: 1)\n")
	fmt.Printf("  --dedup-threshold  : Similarity above which frames are duplicates (default: 0.95)\n")
	fmt.Printf("  --no-embedding     : Disable the learned-feature strategy\n")
	fmt.Printf("  --model            : Path to the embedding model weights\n")
	fmt.Printf("  --no-previews      : Skip thumbnail generation\n")
	fmt.Printf("  --debug            : Enable debug logging\n")
	fmt.Printf("  --logfile          : Duplicate log output to this file\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s extract --video=webinar.mp4 --out=./slides --skip=5\n", os.Args[0])
	fmt.Printf("  %s extract --video=talk.mkv --out=./frames --threshold=0.25 --no-embedding\n", os.Args[0])
	fmt.Printf("  %s stats\n", os.Args[0])
}
