package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
)

// priceListAPI is the slice of the AWS Price List API the job uses.
type priceListAPI interface {
	ListPriceLists(ctx context.Context, params *pricing.ListPriceListsInput, optFns ...func(*pricing.Options)) (*pricing.ListPriceListsOutput, error)
}

// PriceListClient resolves the current EC2 price list version through the
// AWS Price List API. The API is only reachable with credentials; callers
// fall back to the public offers index when it is unavailable.
type PriceListClient struct {
	api priceListAPI
}

// NewPriceListClient builds a client from the ambient AWS configuration.
// The Price List API is only served out of us-east-1.
func NewPriceListClient(ctx context.Context) (*PriceListClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-1"))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &PriceListClient{api: pricing.NewFromConfig(cfg)}, nil
}

// CurrentEC2Version returns the version identifier of the current
// AmazonEC2 price list.
func (c *PriceListClient) CurrentEC2Version(ctx context.Context) (string, error) {
	out, err := c.api.ListPriceLists(ctx, &pricing.ListPriceListsInput{
		ServiceCode:   aws.String("AmazonEC2"),
		CurrencyCode:  aws.String("USD"),
		EffectiveDate: aws.Time(time.Now()),
		RegionCode:    aws.String("us-east-1"),
		MaxResults:    aws.Int32(1),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list price lists: %w", err)
	}
	if len(out.PriceLists) == 0 {
		return "", fmt.Errorf("no current price list returned for AmazonEC2")
	}

	arn := aws.ToString(out.PriceLists[0].PriceListArn)
	version, err := versionFromPriceListArn(arn)
	if err != nil {
		return "", err
	}
	return version, nil
}

// versionFromPriceListArn extracts the version segment of a price list
// ARN, e.g. "arn:aws:pricing::aws:price-list/aws/AmazonEC2/USD/20240305/us-east-1".
func versionFromPriceListArn(arn string) (string, error) {
	segments := strings.Split(arn, "/")
	if len(segments) < 5 {
		return "", fmt.Errorf("unexpected price list arn format: %q", arn)
	}
	version := segments[len(segments)-2]
	if version == "" {
		return "", fmt.Errorf("empty version in price list arn: %q", arn)
	}
	return version, nil
}
