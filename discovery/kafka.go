package discovery

// BrokerSet bootstrap broker addresses
type BrokerSet struct {
	Bootstrap []string
}

var (
	// LocalKafka brokers exposed on a developer machine
	LocalKafka = BrokerSet{
		Bootstrap: []string{"bootstrap.127.0.0.1.nip.io:9094"},
	}

	// KubernetesInternalKafka brokers reachable from inside the development cluster
	KubernetesInternalKafka = BrokerSet{
		Bootstrap: []string{"kafka-cluster-dual-role-0.kafka.svc.cluster.local:9094"},
	}

	// ProductionKafka production brokers; production workloads run in the
	// cluster and reach the same bootstrap as in-cluster development
	ProductionKafka = BrokerSet{
		Bootstrap: []string{"kafka-cluster-dual-role-0.kafka.svc.cluster.local:9094"},
	}
)

// KafkaBrokers selects the broker set:
// production -> production brokers; otherwise in-cluster -> internal brokers;
// otherwise local brokers.
// The returned slice is a copy.
func KafkaBrokers(env Environment, inCluster bool) []string {
	var set BrokerSet
	switch {
	case env == Production:
		set = ProductionKafka
	case inCluster:
		set = KubernetesInternalKafka
	default:
		set = LocalKafka
	}
	return append([]string(nil), set.Bootstrap...)
}
