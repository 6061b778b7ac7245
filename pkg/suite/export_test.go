package suite

type (
	FakeRunner  = fakeRunner
	FakeSleeper = fakeSleeper
	FakeClock   = fakeClock
)

var (
	NewFakeRunner    = newFakeRunner
	NewFakeClock     = newFakeClock
	PassingBandwidth = passingBandwidth
	SingleStaticPlan = singleStaticPlan
)
