// Package provider contains pure functions for cloud provider logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package provider

// Region represents a cloud provider region.
type Region struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// =============================================================================
// AWS Region Catalog
// =============================================================================

// AWSRegions returns the regions that are enabled by default on every account.
// Used when the live region listing cannot be fetched.
func AWSRegions() []Region {
	return []Region{
		{ID: "us-east-1", Name: "US East (N. Virginia)", Available: true},
		{ID: "us-east-2", Name: "US East (Ohio)", Available: true},
		{ID: "us-west-1", Name: "US West (N. California)", Available: true},
		{ID: "us-west-2", Name: "US West (Oregon)", Available: true},
		{ID: "ca-central-1", Name: "Canada (Central)", Available: true},
		{ID: "eu-west-1", Name: "EU (Ireland)", Available: true},
		{ID: "eu-west-2", Name: "EU (London)", Available: true},
		{ID: "eu-west-3", Name: "EU (Paris)", Available: true},
		{ID: "eu-central-1", Name: "EU (Frankfurt)", Available: true},
		{ID: "eu-north-1", Name: "EU (Stockholm)", Available: true},
		{ID: "ap-south-1", Name: "Asia Pacific (Mumbai)", Available: true},
		{ID: "ap-southeast-1", Name: "Asia Pacific (Singapore)", Available: true},
		{ID: "ap-southeast-2", Name: "Asia Pacific (Sydney)", Available: true},
		{ID: "ap-northeast-1", Name: "Asia Pacific (Tokyo)", Available: true},
		{ID: "ap-northeast-2", Name: "Asia Pacific (Seoul)", Available: true},
		{ID: "ap-northeast-3", Name: "Asia Pacific (Osaka)", Available: true},
		{ID: "sa-east-1", Name: "South America (Sao Paulo)", Available: true},
	}
}

// RegionIDs returns the IDs of the available regions.
func RegionIDs(regions []Region) []string {
	ids := make([]string, 0, len(regions))
	for _, r := range regions {
		if r.Available {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
