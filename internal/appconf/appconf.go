package appconf

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

// Config holds all the configuration settings for our Application.
// These are read in from command-line flags (with environment-variable
// fallbacks) when the Application starts.
type Config struct {
	Port      int
	Env       Environment
	ApiKeys   []string
	RateLimit int
}

func EnvFlagToEnvironment(env string) Environment {
	switch env {
	case "production":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Production:
		return "production"
	case Test:
		return "test"
	default:
		return "development"
	}
}
