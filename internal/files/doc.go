// Package files provides file system operations for the warehouse tiers.
//
// Discovery lists the date-named snapshot files of an item directory
// (YYYY-MM-DD.csv), skipping hidden files, subdirectories and names that do
// not parse as a date.
//
// Manager performs whole-file writes. A write replaces the previous file;
// there is no partial-write protection.
//
// Example usage:
//
//	discovery := files.NewDiscovery("2006-01-02", ".csv")
//	dated, err := discovery.FindDatedFiles(dir)
//
//	manager := files.NewManager(logger)
//	err = manager.WriteWith(path, p.WriteCSV)
package files
