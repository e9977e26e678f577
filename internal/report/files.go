package report

// Names of the files generated in the job output directory.
const (
	FileRobotData   = "robot_data.dat"
	FileCameraData  = "camera_data.dat"
	FileMetaInfo    = "info.json"
	FileReport      = "report.json"
	FileBuildOutput = "build_output.txt"
	FileUserStdout  = "user_stdout.txt"
	FileUserStderr  = "user_stderr.txt"
	FileGoal        = "goal.json"
	FileErrorReport = "error_report.txt"

	// UserOutputDir is the subdirectory bound to /output inside the
	// user-code container.
	UserOutputDir = "user"
)
