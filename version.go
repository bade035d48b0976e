package goboreal

// BorealGoDriverVersion is the version of the driver, reported to the server
// at session build time.
const BorealGoDriverVersion = "0.9.0"
