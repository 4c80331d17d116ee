// Package confloader loads configuration with koanf and watches the
// configuration file for changes.
//
// Priority (highest to lowest):
//
//  1. Values passed to LoadMap (command-line flags)
//  2. Environment variables (CHATMESH_ prefix)
//  3. The YAML configuration file
//  4. Defaults already present in the target struct
//
// Environment variable names map to keys by lowercasing and turning a
// double underscore into a dot, so underscores inside key names survive:
// CHATMESH_SHARED_STORE__REDIS__ADDR sets shared_store.redis.addr.
package confloader
