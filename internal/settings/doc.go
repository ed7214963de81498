// Package settings loads the application configuration from a YAML file,
// overlays the pairs found in a dotenv file under the reserved "envs" node and
// exposes the merged tree as a read-only snapshot whose lookups never fail:
// asking for a key that does not exist yields an empty, still navigable Value.
// The live tree behind the snapshot can be mutated with dotted paths via Set.
package settings
