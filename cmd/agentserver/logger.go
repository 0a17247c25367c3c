// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/arcadeflow/agentserver/pkg/logger"
)

// initLoggerFromCLI initializes the process-wide slog logger from CLI
// flags, ahead of config loading (so config-loading errors are already
// logged correctly).
func initLoggerFromCLI(cliLogLevel, cliLogFile, cliLogFormat string) (func(), error) {
	level, err := logger.ParseLevel(cliLogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var output *os.File
	var cleanup func()
	if cliLogFile != "" {
		file, cleanupFn, err := logger.OpenLogFile(cliLogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output, cleanup = file, cleanupFn
	} else {
		output = os.Stderr
	}

	logger.Init(level, output, cliLogFormat)
	return cleanup, nil
}
