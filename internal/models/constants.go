package models

// SolveStatus describes the quality of a solver result.
type SolveStatus string

const (
	StatusOptimal    SolveStatus = "OPTIMAL"
	StatusSuboptimal SolveStatus = "SUBOPTIMAL"
	StatusInfeasible SolveStatus = "INFEASIBLE"
)

const (
	SolverSimplex = "simplex"
	SolverGreedy  = "greedy"

	DemandSourceCSV       = "csv"
	DemandSourcePostgres  = "postgres"
	DemandSourceSynthetic = "synthetic"

	OutputFormatConsole = "console"
	OutputFormatCSV     = "csv"
	OutputFormatJSON    = "json"
	OutputFormatParquet = "parquet"

	OutputDestinationLocal = "local"
	OutputDestinationS3    = "s3"

	ClusterUrbanCore        = "urban_core"
	ClusterUrbanResidential = "urban_residential"
	ClusterSuburban         = "suburban"
)
