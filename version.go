// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package kcap

// SemVersion is the semantic version string of the kcap module.
const SemVersion = "0.4.1"
