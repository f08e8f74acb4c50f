// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rules

import (
	_ "embed"
)

// SensitiveDataRules holds the raw content of sensitive_data_rules.yaml.
//
// The rules are baked into the binary at compile time so they travel
// with the executable and cannot be tampered with on the host
// filesystem without recompiling.
//
//go:embed sensitive_data_rules.yaml
var SensitiveDataRules []byte
