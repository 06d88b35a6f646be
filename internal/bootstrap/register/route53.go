package register

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
)

// route53Registrar publishes a ring participant as an SRV record so other
// nodes resolving the hosted zone can discover it as a seed.
type route53Registrar struct {
	client       *route53.Client
	hostedZoneID string
	domainSuffix string
	ttl          int64
}

// newRoute53Registrar loads AWS credentials from the default provider chain
// and returns a registrar bound to hostedZoneID.
func newRoute53Registrar(ctx context.Context, hostedZoneID, domainSuffix string, ttl int64) (*route53Registrar, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("register: load aws config: %w", err)
	}
	return &route53Registrar{
		client:       route53.NewFromConfig(awsCfg),
		hostedZoneID: hostedZoneID,
		domainSuffix: strings.TrimSuffix(domainSuffix, "."),
		ttl:          ttl,
	}, nil
}

// recordName derives the SRV record owner name for a node's identifier:
// "{nodeID}.{domainSuffix}.".
func (r *route53Registrar) recordName(nodeID string) string {
	return fmt.Sprintf("%s.%s.", nodeID, r.domainSuffix)
}

func (r *route53Registrar) srvChange(action types.ChangeAction, nodeID, targetHost string, port int) *route53.ChangeResourceRecordSetsInput {
	targetHost = strings.TrimSuffix(targetHost, ".")
	return &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(r.hostedZoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action: action,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name: aws.String(r.recordName(nodeID)),
						Type: types.RRTypeSrv,
						TTL:  aws.Int64(r.ttl),
						ResourceRecords: []types.ResourceRecord{
							{Value: aws.String(fmt.Sprintf("0 0 %d %s.", port, targetHost))},
						},
					},
				},
			},
		},
	}
}

// RegisterNode upserts the SRV record for nodeID.
func (r *route53Registrar) RegisterNode(ctx context.Context, nodeID, targetHost string, port int) error {
	_, err := r.client.ChangeResourceRecordSets(ctx, r.srvChange(types.ChangeActionUpsert, nodeID, targetHost, port))
	if err != nil {
		return fmt.Errorf("register: route53 upsert %s: %w", nodeID, err)
	}
	return nil
}

// DeregisterNode removes the SRV record for nodeID.
func (r *route53Registrar) DeregisterNode(ctx context.Context, nodeID, targetHost string, port int) error {
	_, err := r.client.ChangeResourceRecordSets(ctx, r.srvChange(types.ChangeActionDelete, nodeID, targetHost, port))
	if err != nil {
		return fmt.Errorf("register: route53 delete %s: %w", nodeID, err)
	}
	return nil
}

// RenewNode is a no-op: Route53 records carry no lease to renew, only a TTL
// clients cache for, so keeping the record upserted is sufficient.
func (r *route53Registrar) RenewNode(ctx context.Context, nodeID, targetHost string, port int) error {
	return nil
}

// Close is a no-op: the SDK client holds no resources that need releasing.
func (r *route53Registrar) Close() error {
	return nil
}
