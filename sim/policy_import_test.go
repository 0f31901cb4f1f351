package sim_test

// Blank import triggers sim/policy's init(), which registers the learning and
// oracle-backed policies. Package sim's internal test files can then resolve
// the default policy without importing sim/policy (which would create an import cycle).
import _ "github.com/adversarial-coverage/adsim/sim/policy"
