// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
This file bridges the build system and the runtime screener. It uses the Go
embed package to bake prompt_screening_patterns.yaml directly into the
compiled binary, so the screening rules are immutable at runtime and travel
with the executable.
*/

package enforcement

import (
	_ "embed"
)

// PromptScreeningPatterns holds the raw bytes of prompt_screening_patterns.yaml.
//
// Populated at compile time via the embed directive. Baking the YAML into the
// binary guarantees the screening policy cannot be tampered with on the host
// filesystem without recompiling the service.
//
// Usage:
//
//	err := yaml.Unmarshal(enforcement.PromptScreeningPatterns, &targetStruct)
//
//go:embed prompt_screening_patterns.yaml
var PromptScreeningPatterns []byte
